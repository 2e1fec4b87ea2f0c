package types

// UploadedImage is one image received on POST /predict. It lives only for the
// request that received it.
type UploadedImage struct {
	// Original file name as sent by the client.
	Filename string
	// MIME type declared in the multipart part header.
	ContentType string
	// Raw image bytes.
	Data []byte
}

// DefaultModelSpec returns the constraints of the bundled CAPTCHA model:
// 200x50 images with five characters out of a 19-symbol alphabet.
func DefaultModelSpec() ModelSpec {
	return ModelSpec{
		ImageWidth:    200,
		ImageHeight:   50,
		TextLength:    5,
		Charset:       "2345678bcdefgmnpwxy",
		AcceptedTypes: []string{"image/png", "image/jpeg"},
	}
}
