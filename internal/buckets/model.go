package buckets

import "time"

type Bucket struct {
	Name         string    `json:"name"`
	CreationDate time.Time `json:"creation_date"`
}

// BucketFileMetadata describes one object. Expires is zero when the object
// carries no expiration.
type BucketFileMetadata struct {
	Path            string         `json:"path"`
	LastModified    time.Time      `json:"last_modified"`
	StorageClass    string         `json:"storage_class"`
	Expires         time.Time      `json:"expires,omitzero"`
	ContentType     string         `json:"content_type,omitempty"`
	ContentEncoding string         `json:"content_encoding,omitempty"`
	ETag            string         `json:"etag,omitempty"`
	Size            int64          `json:"size"`
	Other           map[string]any `json:"other,omitempty"`
}

type BucketFile struct {
	BucketFileMetadata
	Data []byte `json:"-"`
}

// BucketFileList is one page of a file listing. Folders holds common
// prefixes and is only populated by non-recursive listings.
type BucketFileList struct {
	Files   []BucketFileMetadata `json:"files"`
	Folders []string             `json:"folders,omitempty"`
	Next    string               `json:"next,omitempty"`
}

type BucketList struct {
	Buckets []Bucket `json:"buckets"`
	Next    string   `json:"next,omitempty"`
}

type FileVersion struct {
	Path           string    `json:"path"`
	VersionID      string    `json:"version_id"`
	ETag           string    `json:"etag,omitempty"`
	StorageClass   string    `json:"storage_class,omitempty"`
	LastModified   time.Time `json:"last_modified"`
	Size           int64     `json:"size"`
	IsLatest       bool      `json:"is_latest"`
	IsDeleteMarker bool      `json:"is_delete_marker,omitempty"`
}

type FileVersionList struct {
	Versions []FileVersion `json:"versions"`
	Next     string        `json:"next,omitempty"`
}

// BucketWebsiteConfiguration is either a static site (IndexPage/ErrorPage)
// or a whole-bucket redirect (RedirectHostName/RedirectProtocol).
type BucketWebsiteConfiguration struct {
	IndexPage        string `json:"index_page,omitempty"`
	ErrorPage        string `json:"error_page,omitempty"`
	RedirectHostName string `json:"redirect_host_name,omitempty"`
	RedirectProtocol string `json:"redirect_protocol,omitempty"`
}

func (c BucketWebsiteConfiguration) IsRedirect() bool {
	return c.IndexPage == "" && c.ErrorPage == "" && c.RedirectHostName != ""
}

func (c BucketWebsiteConfiguration) Validate() error {
	site := c.IndexPage != "" || c.ErrorPage != ""
	redirect := c.RedirectHostName != "" || c.RedirectProtocol != ""
	switch {
	case site && redirect:
		return &ConfigError{Field: "website", Message: "index/error pages and redirect target are mutually exclusive"}
	case !site && !redirect:
		return &ConfigError{Field: "website", Message: "either index/error pages or a redirect host name is required"}
	case redirect && c.RedirectHostName == "":
		return &ConfigError{Field: "website.redirect_host_name", Message: "redirect host name is required"}
	}
	return nil
}

type EncryptionSettings struct {
	Algorithm        string `json:"algorithm"`
	KeyID            string `json:"key_id,omitempty"`
	BucketKeyEnabled bool   `json:"bucket_key_enabled,omitempty"`
}

// Policy is an access-policy document. It is passed through untouched.
type Policy map[string]any
