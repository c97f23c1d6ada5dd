package install

import "strings"

// devProdFilter decides which of a node's dev/prod
// flags make it eligible for install, given the Configuration's
// dev/development/production/only/also inputs.
type devProdFilter struct {
	dev, development, production bool
	only, also                   string
}

func newDevProdFilter(dev, development, production bool, only, also string) devProdFilter {
	return devProdFilter{dev: dev, development: development, production: production, only: only, also: also}
}

func matchesDev(s string) bool {
	s = strings.ToLower(s)
	return s == "dev" || s == "development"
}

func matchesProd(s string) bool {
	s = strings.ToLower(s)
	return s == "prod" || s == "production"
}

// includeDev reports whether a dev-only dependency should be
// installed: the dev/development flag is set, or only doesn't name
// prod and production is false, or only/also names dev.
func (f devProdFilter) includeDev() bool {
	if f.dev || f.development {
		return true
	}
	if !matchesProd(f.only) && !f.production {
		return true
	}
	if matchesDev(f.only) || matchesDev(f.also) {
		return true
	}
	return false
}

// includeProd reports whether a non-dev dependency should be
// installed: always, unless only names dev.
func (f devProdFilter) includeProd() bool {
	return !matchesDev(f.only)
}

// include reports whether n is eligible given its Dev flag.
func (f devProdFilter) include(dev bool) bool {
	if dev {
		return f.includeDev()
	}
	return f.includeProd()
}
