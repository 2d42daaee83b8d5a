package model

// Thought is one recorded step of a sequential-thinking chain.
type Thought struct {
	Thought               string   `json:"thought"`
	ThoughtNumber         int      `json:"thoughtNumber"`
	TotalThoughts         int      `json:"totalThoughts"`
	NextThoughtNeeded     bool     `json:"nextThoughtNeeded"`
	Stage                 string   `json:"stage"`
	Tags                  []string `json:"tags,omitempty"`
	AxiomsUsed            []string `json:"axiomsUsed,omitempty"`
	AssumptionsChallenged []string `json:"assumptionsChallenged,omitempty"`
}

type ThoughtDigest struct {
	ThoughtNumber int    `json:"thoughtNumber"`
	Stage         string `json:"stage"`
	Thought       string `json:"thought"`
}

type ThoughtSummary struct {
	TotalThoughts int             `json:"totalThoughts"`
	Stages        []string        `json:"stages"`
	Thoughts      []ThoughtDigest `json:"thoughts"`
}
