package model

// EmailTemplate registers a named template and the file backing it.
type EmailTemplate struct {
	ID          int
	Name        string
	FilePath    string
	Description string
}
