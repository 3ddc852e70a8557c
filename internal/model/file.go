package model

// UploadedFile is one file supplied by the user: raw bytes plus the declared
// name and MIME type. It lives only for the duration of a validate/transform/
// package cycle and is never persisted except as archive content.
type UploadedFile struct {
	Name string
	MIME string
	Data []byte
}

// SizeKB returns the file size in binary kilobytes, rounded up. Exam boards
// publish limits in KB; the ceiling keeps a 1025-byte file from passing a
// 1 KB bound.
func (f *UploadedFile) SizeKB() int {
	return int((int64(len(f.Data)) + 1023) / 1024)
}
