package tools

// Instructions is sent to the host at initialization.
const Instructions = `Use the generate_image tool to create images from text descriptions. Images are returned inline; when a URL is returned as well it can be shown in markdown as ![description](URL).

Writing prompts for Imagen:
- Write prompts in English, at most about 480 tokens.
- Name the subject first, then its context or background, then the style. Example: "A sketch of a modern apartment building surrounded by skyscrapers".
- Refine iteratively: start from the core idea and add detail until the result matches.
- Photographs: start with "A photo of..." and add modifiers for proximity (close-up, aerial), lighting (natural, dramatic), camera settings (bokeh, motion blur), lens (35mm, macro, fisheye) or film (polaroid, black and white).
- Art: "A pastel painting of...", "A charcoal drawing of...", "...in the style of pop art", "...made of paper", "...in the shape of a bird".
- Quality: "4K", "HDR", "studio photo", "by a professional", "detailed".
- Text in images: keep it under 25 characters and use at most three phrases.
- Faces: say "portrait" to focus on facial detail.

Aspect ratios (aspect_ratio): 1:1 (default, social posts), 4:3 (photography, film), 3:4 (vertical scenes), 16:9 (landscapes), 9:16 (tall subjects such as buildings or waterfalls).

Errors carry a kind. TransientUpstreamError and QuotaExceeded may succeed later. ContentBlocked means the prompt should be rephrased. ValidationError and RequestRejected will not succeed unchanged.`
