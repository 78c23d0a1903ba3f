package ir

// ErrorField is the output field that marks an entry as error-shaped.
const ErrorField = "error"

// ActionEntry is one completed concept-method invocation in a request's log.
// Entries are immutable once appended; Index is the position in the log.
type ActionEntry struct {
	Index     int      `json:"index"`
	Seq       int64    `json:"seq"`
	FlowToken string   `json:"flow_token"`
	Concept   string   `json:"concept"`
	Method    string   `json:"method"`
	Input     IRObject `json:"input"`
	Output    IRObject `json:"output"`
}

// ActionRef returns "Concept.method".
func (e ActionEntry) ActionRef() string {
	return ActionRefOf(e.Concept, e.Method)
}

// IsError reports whether the entry carries an error-shaped output.
func (e ActionEntry) IsError() bool {
	_, ok := e.Output[ErrorField]
	return ok
}

// ErrorOutput builds the error-shaped output recorded for a failed call.
func ErrorOutput(msg string) IRObject {
	return IRObject{ErrorField: IRString(msg)}
}

// ActionRefOf joins a concept and method into "Concept.method".
func ActionRefOf(concept, method string) string {
	return concept + "." + method
}

// SplitActionRef splits "Concept.method" at the first dot.
// ok is false if either half is empty.
func SplitActionRef(ref string) (concept, method string, ok bool) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '.' {
			concept, method = ref[:i], ref[i+1:]
			return concept, method, concept != "" && method != ""
		}
	}
	return "", "", false
}
