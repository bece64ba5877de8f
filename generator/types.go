package generator

// TaskOutput is what one task produced inside a crew run.
type TaskOutput struct {
	Task  string `json:"task"`
	Agent string `json:"agent"`
	Raw   string `json:"raw"`
	// File is where the output was saved, if the task has an output file.
	File string `json:"file,omitempty"`
}

// CrewOutput is the result of a crew run. Raw is the last task's output.
type CrewOutput struct {
	Raw   string       `json:"raw"`
	Tasks []TaskOutput `json:"tasks"`
}

// Document is the final presentation outline.
type Document struct {
	Topic    string `json:"topic"`
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}
