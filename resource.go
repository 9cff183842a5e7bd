package yamlid

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// DefaultConcurrency is the number of parallel S3 downloads
// used by LoadPattern.
const DefaultConcurrency = 16

// ResourceLoadError is returned when a resource is missing,
// cannot be read or is empty. Err is nil for empty resources.
type ResourceLoadError struct {
	Ref string
	Err error
}

func (e *ResourceLoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resource '%s' is empty", e.Ref)
	}
	return fmt.Sprintf("cannot load resource '%s': %s", e.Ref, e.Err)
}

// Resource is a loaded named byte resource.
type Resource struct {
	Ref  string
	Data []byte
}

// Loader reads resources from local paths, file:// and s3:// URLs.
type Loader struct {
	// S3 client, created from the default AWS session on first use if nil.
	S3 s3iface.S3API
	// Concurrency limits parallel S3 downloads, DefaultConcurrency if zero.
	Concurrency int

	once sync.Once
	err  error
}

func (l *Loader) s3Client() (s3iface.S3API, error) {
	l.once.Do(func() {
		if l.S3 != nil {
			return
		}
		sess, err := session.NewSession()
		if err != nil {
			l.err = errors.Annotatef(err, "cannot create AWS session")
			return
		}
		l.S3 = s3.New(sess)
	})
	return l.S3, l.err
}

type s3Ref struct {
	bucket  string
	key     string
	version string
}

// parseRef splits ref into either a local path or an S3 location.
func parseRef(ref string) (string, *s3Ref, error) {
	if !strings.Contains(ref, "://") {
		return ref, nil, nil
	}
	urlInfo, err := url.Parse(ref)
	if err != nil {
		return "", nil, errors.Annotatef(err, "invalid URL '%s'", ref)
	}
	switch urlInfo.Scheme {
	case "file":
		return urlInfo.Host + urlInfo.Path, nil, nil
	case "s3":
		return "", &s3Ref{
			bucket:  urlInfo.Host,
			key:     strings.TrimPrefix(urlInfo.Path, "/"),
			version: urlInfo.Query().Get("versionId"),
		}, nil
	}
	return "", nil, errors.Errorf("unknown URL scheme '%s' in '%s'", urlInfo.Scheme, ref)
}

// Load reads the resource named by ref.
func (l *Loader) Load(ref string) ([]byte, error) {
	path, loc, err := parseRef(ref)
	if err != nil {
		return nil, errors.Trace(&ResourceLoadError{Ref: ref, Err: err})
	}

	var data []byte
	if loc != nil {
		data, err = l.loadS3(loc)
	} else {
		data, err = ioutil.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Trace(&ResourceLoadError{Ref: ref, Err: err})
	}
	if len(data) == 0 {
		return nil, errors.Trace(&ResourceLoadError{Ref: ref})
	}
	return data, nil
}

func (l *Loader) loadS3(loc *s3Ref) ([]byte, error) {
	client, err := l.s3Client()
	if err != nil {
		return nil, errors.Trace(err)
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(loc.bucket),
		Key:    aws.String(loc.key),
	}
	if loc.version != "" {
		input.VersionId = aws.String(loc.version)
	}
	obj, err := client.GetObject(input)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer obj.Body.Close()
	return ioutil.ReadAll(obj.Body)
}

// LoadPattern reads every resource matching pattern, sorted by name.
// Patterns use filepath.Match syntax, for S3 the part before the
// first '*' is used as listing prefix.
func (l *Loader) LoadPattern(pattern string) ([]Resource, error) {
	path, loc, err := parseRef(pattern)
	if err != nil {
		return nil, errors.Trace(&ResourceLoadError{Ref: pattern, Err: err})
	}
	if loc != nil {
		return l.loadS3Pattern(pattern, loc)
	}

	files, err := filepath.Glob(path)
	if err != nil {
		return nil, errors.Annotatef(err, "cannot list files matching '%s'", pattern)
	}
	res := make([]Resource, 0, len(files))
	for _, file := range files {
		data, err := l.Load(file)
		if err != nil {
			return nil, errors.Trace(err)
		}
		res = append(res, Resource{Ref: file, Data: data})
	}
	return res, nil
}

func (l *Loader) loadS3Pattern(pattern string, loc *s3Ref) ([]Resource, error) {
	client, err := l.s3Client()
	if err != nil {
		return nil, errors.Trace(err)
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(loc.bucket),
		Prefix: aws.String(strings.SplitN(loc.key, "*", 2)[0]),
	}
	var keys []string
	for {
		output, err := client.ListObjectsV2(input)
		if err != nil {
			return nil, errors.Annotatef(err, "cannot list objects matching '%s'", pattern)
		}
		for _, obj := range output.Contents {
			match, err := filepath.Match(loc.key, aws.StringValue(obj.Key))
			if err != nil {
				return nil, errors.Annotatef(err, "invalid pattern '%s'", pattern)
			}
			if match {
				keys = append(keys, aws.StringValue(obj.Key))
			}
		}
		if output.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = output.NextContinuationToken
	}
	sort.Strings(keys)

	limit := l.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	res := make([]Resource, len(keys))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, key := range keys {
		i, ref := i, "s3://"+loc.bucket+"/"+key
		g.Go(func() error {
			data, err := l.Load(ref)
			if err != nil {
				return err
			}
			res[i] = Resource{Ref: ref, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Trace(err)
	}
	return res, nil
}

// LoadDocument loads ref and decodes it with the decoder named
// by its file extension.
func (r *Recoder) LoadDocument(l *Loader, ref string) (*yaml.Node, error) {
	data, err := l.Load(ref)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r.DecodeResource(ref, bytes.NewReader(data))
}

// DecodeResource decodes in with the decoder named by the
// file extension of ref.
func (r *Recoder) DecodeResource(ref string, in io.Reader) (*yaml.Node, error) {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		ref = u.Path
	}
	ext := strings.TrimPrefix(filepath.Ext(ref), ".")
	decoder, ok := r.Decoders[ext]
	if !ok {
		return nil, errors.Errorf("unknown file extension '%s', cannot parse '%s'", ext, ref)
	}
	doc, err := decoder.Decode(in, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "cannot parse '%s'", ref)
	}
	return doc, nil
}

