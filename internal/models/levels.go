// ABOUTME: Explanation levels and framework tags attached to lessons
// ABOUTME: Both are closed sets parsed leniently from user or model input
package models

import "strings"

// ExplanationLevel controls how technical generated explanations are
type ExplanationLevel string

const (
	LevelFiveYearOld ExplanationLevel = "5_year_old"
	LevelIntern      ExplanationLevel = "intern"
	LevelSenior      ExplanationLevel = "senior"
)

// DefaultLevel is used when no preference has been recorded
const DefaultLevel = LevelIntern

var levelHints = map[ExplanationLevel]string{
	LevelFiveYearOld: "Explain like I'm 5 years old. Use simple words, analogies, and avoid technical jargon.",
	LevelIntern:      "Explain at an intern level. Use some technical terms but explain them clearly.",
	LevelSenior:      "Explain at a senior engineer level. Use technical terminology and focus on advanced concepts.",
}

// IsValid reports whether the level is one of the known levels
func (l ExplanationLevel) IsValid() bool {
	_, ok := levelHints[l]
	return ok
}

// Hint returns the prompt instruction for the level
func (l ExplanationLevel) Hint() string {
	if h, ok := levelHints[l]; ok {
		return h
	}
	return levelHints[DefaultLevel]
}

// ParseLevel maps loose input ("senior", "5 year old", "eli5") to a level
func ParseLevel(s string) ExplanationLevel {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch s {
	case "5_year_old", "5_years_old", "five_year_old", "eli5", "beginner":
		return LevelFiveYearOld
	case "senior", "expert", "advanced":
		return LevelSenior
	case "intern", "intermediate":
		return LevelIntern
	}
	return DefaultLevel
}

// Framework tags the technical domain of a document
type Framework string

const (
	FrameworkFastAPI         Framework = "fastapi"
	FrameworkDocker          Framework = "docker"
	FrameworkPython          Framework = "python"
	FrameworkMachineLearning Framework = "machine_learning"
	FrameworkAI              Framework = "ai"
	FrameworkLangChain       Framework = "langchain"
	FrameworkReact           Framework = "react"
	FrameworkNextJS          Framework = "nextjs"
	FrameworkTypeScript      Framework = "typescript"
	FrameworkNodeJS          Framework = "nodejs"
	FrameworkDatabase        Framework = "database"
	FrameworkCloud           Framework = "cloud"
	FrameworkDevOps          Framework = "devops"
	FrameworkFrontend        Framework = "frontend"
	FrameworkBackend         Framework = "backend"
	FrameworkGeneric         Framework = "generic"
)

// Frameworks lists every framework tag in display order
var Frameworks = []Framework{
	FrameworkFastAPI, FrameworkDocker, FrameworkPython, FrameworkMachineLearning,
	FrameworkAI, FrameworkLangChain, FrameworkReact, FrameworkNextJS,
	FrameworkTypeScript, FrameworkNodeJS, FrameworkDatabase, FrameworkCloud,
	FrameworkDevOps, FrameworkFrontend, FrameworkBackend, FrameworkGeneric,
}

// IsValid reports whether the framework is a known tag
func (f Framework) IsValid() bool {
	for _, known := range Frameworks {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFramework normalizes a model reply such as " FastAPI." to a tag.
// Unknown values yield ok=false.
func ParseFramework(s string) (Framework, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".\"'`")
	s = strings.NewReplacer(" ", "_", "-", "_", ".", "").Replace(s)
	f := Framework(s)
	if f.IsValid() {
		return f, true
	}
	return FrameworkGeneric, false
}
