package model

// ResourceDescriptor names a logical resource and the ordered candidate
// locations that may host it. Descriptors are immutable once handed to the
// orchestrator; defined by the host application at startup.
type ResourceDescriptor struct {
	// Name is the logical resource name (validated: NFC, no path separators).
	Name string `json:"name"`
	// Kind selects the integrity check and clone engine for the resource.
	Kind ResourceKind `json:"kind"`
	// CandidateTemplates are path templates in priority order, highest first.
	// Templates may contain placeholders such as {home}, {appdata}, {tempdir}
	// and ${ENV} environment references.
	CandidateTemplates []string `json:"candidate_templates"`
	// Mode is the access the caller requires.
	Mode AccessMode `json:"mode"`
	// BundleManifest lists required member files (relative paths) for
	// KindBundle resources. Ignored for other kinds.
	BundleManifest []string `json:"bundle_manifest,omitempty"`
}

// CandidateOrigin ranks where a candidate path came from. Lower is higher
// priority: explicit configuration wins over implicit locations.
type CandidateOrigin int

const (
	OriginExplicit CandidateOrigin = iota
	OriginUserProfile
	OriginAppDir
	OriginTempDir
)

func (o CandidateOrigin) String() string {
	switch o {
	case OriginExplicit:
		return "explicit"
	case OriginUserProfile:
		return "user-profile"
	case OriginAppDir:
		return "app-dir"
	case OriginTempDir:
		return "temp-dir"
	}
	return "unknown"
}

// Candidate is one concrete, environment-expanded location considered for
// hosting a resource.
type Candidate struct {
	Path string `json:"path"`
	// Origin records which tier of the priority order produced this path.
	Origin CandidateOrigin `json:"origin"`
	// Rank is the absolute position in the resolved candidate list (0 = first).
	Rank int `json:"rank"`
	// CreationRequired is set when the parent directory did not exist at
	// resolution time.
	CreationRequired bool `json:"creation_required"`
}
