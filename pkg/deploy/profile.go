// Package deploy maps branch names to deployment profiles
package deploy

import (
	"path"
	"strings"
)

// Profile names a deployment target class
type Profile string

const (
	Production       Profile = "production"
	Staging          Profile = "staging"
	ReleaseCandidate Profile = "release-candidate"
	Hotfix           Profile = "hotfix"
	FeatureBranch    Profile = "feature-branch"
)

// Profiles lists every profile SelectProfile can return
var Profiles = []Profile{Production, Staging, ReleaseCandidate, Hotfix, FeatureBranch}

type rule struct {
	pattern string
	profile Profile
}

// first match wins
var rules = []rule{
	{"main", Production},
	{"master", Production},
	{"develop", Staging},
	{"dev", Staging},
	{"release/*", ReleaseCandidate},
	{"hotfix/*", Hotfix},
}

var targets = map[Profile]string{
	Production:       "prod",
	Staging:          "staging",
	ReleaseCandidate: "rc",
	Hotfix:           "prod",
	FeatureBranch:    "preview",
}

var messages = map[Profile]string{
	Production:       "Deploying to production",
	Staging:          "Deploying to staging",
	ReleaseCandidate: "Deploying release candidate",
	Hotfix:           "Deploying hotfix to production",
	FeatureBranch:    "Feature branch build, deploying preview",
}

// NormalizeBranch strips remote and ref prefixes from a branch name
func NormalizeBranch(branch string) string {
	b := strings.TrimSpace(branch)
	b = strings.TrimPrefix(b, "refs/heads/")
	b = strings.TrimPrefix(b, "origin/")
	return b
}

// SelectProfile returns the deployment profile for branch. It is total:
// empty, unknown or unmatched names select FeatureBranch.
func SelectProfile(branch string) Profile {
	b := NormalizeBranch(branch)
	for _, r := range rules {
		if ok, _ := path.Match(r.pattern, b); ok {
			return r.profile
		}
	}
	return FeatureBranch
}

// Target returns the environment the profile deploys to
func (p Profile) Target() string {
	if t, ok := targets[p]; ok {
		return t
	}
	return targets[FeatureBranch]
}

// Message returns a human-readable description of the deployment
func (p Profile) Message() string {
	if m, ok := messages[p]; ok {
		return m
	}
	return messages[FeatureBranch]
}

func (p Profile) String() string {
	return string(p)
}
