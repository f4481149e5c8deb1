package curriculum

// Manifest lists curriculum topics in the order they must be completed.
type Manifest struct {
	Topics []Entry `yaml:"topics"`

	// dir is the manifest's directory; quiz paths resolve against it.
	dir string
}

// Entry is one topic in a manifest.
type Entry struct {
	Title string `yaml:"title"`
	Quiz  string `yaml:"quiz"` // optional path to a quiz source file
}
