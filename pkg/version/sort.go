package version

import "sort"

// Sort sorts a slice of versions in ascending order (oldest first), in place.
func Sort(versions []Version) {
	sort.Sort(versionSlice(versions))
}

// SortDesc sorts a slice of versions in descending order (newest first), in place.
func SortDesc(versions []Version) {
	sort.Sort(sort.Reverse(versionSlice(versions)))
}

type versionSlice []Version

func (vs versionSlice) Len() int           { return len(vs) }
func (vs versionSlice) Less(i, j int) bool { return vs[i].LessThan(vs[j]) }
func (vs versionSlice) Swap(i, j int)      { vs[i], vs[j] = vs[j], vs[i] }

// SortStrings parses and sorts version strings in ascending order. Invalid
// version strings are silently excluded.
func SortStrings(versionStrings []string) []Version {
	var versions []Version
	for _, s := range versionStrings {
		if v, err := Parse(s); err == nil {
			versions = append(versions, v)
		}
	}
	Sort(versions)
	return versions
}

// SortStringsDesc parses and sorts version strings in descending order.
// Invalid version strings are silently excluded.
func SortStringsDesc(versionStrings []string) []Version {
	var versions []Version
	for _, s := range versionStrings {
		if v, err := Parse(s); err == nil {
			versions = append(versions, v)
		}
	}
	SortDesc(versions)
	return versions
}

// Oldest returns the lowest version in versions, and false if versions is
// empty.
func Oldest(versions []Version) (Version, bool) {
	if len(versions) == 0 {
		return Version{}, false
	}
	oldest := versions[0]
	for _, v := range versions[1:] {
		if v.LessThan(oldest) {
			oldest = v
		}
	}
	return oldest, true
}
