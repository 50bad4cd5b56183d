package intent

import "strings"

var imageKeywords = []string{
	"generate image",
	"generate an image",
	"generate a image",
	"generate picture",
	"generate a picture",
	"create image",
	"create an image",
	"create a image",
	"create picture",
	"create a picture",
	"make image",
	"make an image",
	"make a image",
	"make picture",
	"make a picture",
	"show me an image",
	"show me a picture",
	"show me a visual",
	"design image",
	"design a picture",
	"draw me",
	"render this",
	"render it",
	"render an image",
	"create anime",
	"anime style image",
	"anime style drawing",
	"generate anime",
	"create cartoon",
	"in cartoon style",
	"in anime style",
	"pixel art of",
	"generate 3d render",
	"generate 3d model",
	"create concept art",
	"create digital art",
	"low poly render",
	"realistic image",
	"could you generate",
	"would you create",
	"please generate",
	"give me an image of",
	"make me a picture of",
	"turn this into a picture",
}

// IsImageRequest reports whether text asks for an image rather than a text answer.
func IsImageRequest(text string) bool {
	text = strings.ToLower(text)
	for _, kw := range imageKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
