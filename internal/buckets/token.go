package buckets

import "net/url"

// VersionMarker positions a version listing right after one version of a
// key. Its token form is what ListFileVersions returns as Next.
type VersionMarker struct {
	Key       string
	VersionID string
}

func (m VersionMarker) Token() string {
	v := url.Values{}
	v.Set("key", m.Key)
	if m.VersionID != "" {
		v.Set("version", m.VersionID)
	}
	return v.Encode()
}

func ParseVersionMarker(token string) (VersionMarker, error) {
	v, err := url.ParseQuery(token)
	if err != nil || v.Get("key") == "" {
		return VersionMarker{}, &ConfigError{Field: "offset", Value: token, Message: "not a version listing token"}
	}
	return VersionMarker{Key: v.Get("key"), VersionID: v.Get("version")}, nil
}
