package session

const (
	MsgImageModeHint = "💡 Image Generator selected! Try asking me to generate an image using phrases like 'create an image of...' or 'draw me...'"
	MsgImageRedirect = "💡 I detected you want to generate an image! Please switch to the **Image Generator** model for high-quality image generation."
	MsgImageWorking  = "I'm generating a high-quality image for you..."
	MsgImageDone     = "Here's the image I generated for you:"
	MsgImageFailed   = "Sorry, there was an issue with image generation."
	MsgImageOffline  = "Failed to connect to the image generation service. Please try again."
	MsgEmptyAnswer   = "Sorry, I didn't receive a proper response. Please try again."
	MsgRequestFailed = "Sorry, there was an error processing your request. Please try again."
)
