package session

import "strings"

const delimiter = "."

// Credential is a decoded session cookie value.
type Credential struct {
	MemberID string
	Tag      string
}

// Encode joins a member id and its tag. Member ids are UUIDs and never
// contain the delimiter.
func Encode(memberID, tag string) string {
	return memberID + delimiter + tag
}

// Decode splits raw into a credential. It fails unless raw holds exactly one
// delimiter with a non-empty part on each side.
func Decode(raw string) (Credential, bool) {
	if strings.Count(raw, delimiter) != 1 {
		return Credential{}, false
	}
	memberID, tag, _ := strings.Cut(raw, delimiter)
	if memberID == "" || tag == "" {
		return Credential{}, false
	}
	return Credential{MemberID: memberID, Tag: tag}, true
}
