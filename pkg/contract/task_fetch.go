package contract

// FetchTask pulls an artifact produced by an upstream job. An empty Pipeline
// means the current pipeline.
type FetchTask struct {
	Pipeline      string
	Stage         string
	Job           string
	Source        string
	Destination   string
	IsSourceAFile bool
}

func (f *FetchTask) TaskType() string { return TypeFetch }

func (f *FetchTask) validate(errs *ErrorCollection, location string) {
	errs.CheckMissing(location, "stage", f.Stage)
	errs.CheckMissing(location, "job", f.Job)
	errs.CheckMissing(location, "source", f.Source)
}

var fetchEquality = equalityTable[*FetchTask]{
	{"pipeline", ByValue, func(a, b *FetchTask) bool { return a.Pipeline == b.Pipeline }},
	{"stage", ByValue, func(a, b *FetchTask) bool { return a.Stage == b.Stage }},
	{"job", ByValue, func(a, b *FetchTask) bool { return a.Job == b.Job }},
	{"source", ByValue, func(a, b *FetchTask) bool { return a.Source == b.Source }},
	{"destination", ByValue, func(a, b *FetchTask) bool { return a.Destination == b.Destination }},
	{"is_source_a_file", ByValue, func(a, b *FetchTask) bool { return a.IsSourceAFile == b.IsSourceAFile }},
}
