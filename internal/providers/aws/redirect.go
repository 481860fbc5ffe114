package aws

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
)

const bucketRegionHeader = "X-Amz-Bucket-Region"

// endpointReporter is implemented by redirect errors that carry the endpoint
// S3 asked the client to use.
type endpointReporter interface {
	Endpoint() string
}

// redirectRegion reports the region a permanent redirect points to. The
// bucket region header wins; otherwise the region is read from the endpoint
// hostname carried by the error.
func redirectRegion(err error) (string, bool) {
	if !isPermanentRedirect(err) {
		return "", false
	}

	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.ResponseError != nil && re.Response != nil && re.Response.Response != nil {
		if region := strings.TrimSpace(re.Response.Header.Get(bucketRegionHeader)); region != "" {
			return region, true
		}
	}

	var er endpointReporter
	if errors.As(err, &er) {
		if region := regionFromEndpoint(er.Endpoint()); region != "" {
			return region, true
		}
	}
	return "", false
}

func isPermanentRedirect(err error) bool {
	if errorCode(err) == "PermanentRedirect" {
		return true
	}
	return statusCode(err) == http.StatusMovedPermanently
}

// regionFromEndpoint extracts the region label from an S3 hostname such as
// "bucket.s3.eu-west-1.amazonaws.com" or the legacy
// "bucket.s3-eu-west-1.amazonaws.com".
func regionFromEndpoint(endpoint string) string {
	host := strings.ToLower(strings.TrimSpace(endpoint))
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = u.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")

	trimmed := false
	for _, suffix := range []string{".amazonaws.com.cn", ".amazonaws.com"} {
		if strings.HasSuffix(host, suffix) {
			host = strings.TrimSuffix(host, suffix)
			trimmed = true
			break
		}
	}
	if !trimmed {
		return ""
	}

	label := host[strings.LastIndex(host, ".")+1:]
	switch {
	case label == "s3" || label == "s3-external-1":
		return "us-east-1"
	case strings.HasPrefix(label, "s3-"):
		return strings.TrimPrefix(label, "s3-")
	case label == "" || strings.HasPrefix(label, "s3"):
		return ""
	}
	return label
}
