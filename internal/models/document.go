package models

// UploadedBlob is a named file as received from the upload source.
type UploadedBlob struct {
	Name string
	Data []byte
}

// ExtractedContent is what the analysis pipeline pulled out of one source file.
type ExtractedContent struct {
	Content string
	Title   string
	Size    int64
	Kind    string // extension without the dot, e.g. "pdf"
}

// FileData maps a source file path to its extracted content.
type FileData map[string]ExtractedContent
