package resources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultHubURL is the Hugging Face Hub base URL.
const DefaultHubURL = "https://huggingface.co"

type ResourceFlag uint8

// WriteCounter counts the number of bytes written to it, and every 10 seconds,
// it logs a message reporting the number of bytes written so far.
type WriteCounter struct {
	Total    uint64
	Last     time.Time
	Reported bool
	Path     string
	Size     uint64
	Logger   zerolog.Logger
}

func (wc *WriteCounter) Write(p []byte) (int, error) {
	n := len(p)
	wc.Total += uint64(n)
	if time.Since(wc.Last).Seconds() > 10 {
		wc.Reported = true
		wc.Last = time.Now()
		wc.Logger.Info().Msgf("Downloading %s... %s / %s completed.",
			wc.Path, humanize.Bytes(wc.Total), humanize.Bytes(wc.Size))
	}
	return n, nil
}

// Enumeration of resource flags that indicate what the resolver should do
// with the resource. Of the RESOURCE_ONEOF entries, the first one found in
// name order is resolved and the rest are ignored.
const (
	RESOURCE_REQUIRED ResourceFlag = 1 << iota
	RESOURCE_OPTIONAL
	RESOURCE_ONEOF
)

type ResourceEntryDefs map[string]ResourceFlag

// ResourceEntry is a resolved file on local disk, mapped into memory.
type ResourceEntry struct {
	Path  string
	Data  []byte
	file  *os.File
	unmap func() error
}

// Close unmaps the data and closes the file. Data must not be used after.
func (entry *ResourceEntry) Close() error {
	var err error
	if entry.unmap != nil {
		err = entry.unmap()
		entry.unmap = nil
	}
	if entry.file != nil {
		if closeErr := entry.file.Close(); err == nil {
			err = closeErr
		}
		entry.file = nil
	}
	entry.Data = nil
	return err
}

type Resources map[string]*ResourceEntry

func (rsrcs Resources) Cleanup() {
	for _, rsrc := range rsrcs {
		rsrc.Close()
	}
}

// WordPieceEntries
// Files a WordPiece tokenizer can be built from. `tokenizer.json` wins over
// `vocab.txt` when both exist.
func WordPieceEntries() ResourceEntryDefs {
	return ResourceEntryDefs{
		"tokenizer.json":        RESOURCE_ONEOF,
		"vocab.txt":             RESOURCE_ONEOF,
		"tokenizer_config.json": RESOURCE_OPTIONAL,
	}
}

// SentencePieceEntries
// Files a SentencePiece tokenizer can be built from.
func SentencePieceEntries() ResourceEntryDefs {
	return ResourceEntryDefs{
		"spiece.model":            RESOURCE_ONEOF,
		"tokenizer.model":         RESOURCE_ONEOF,
		"special_tokens_map.json": RESOURCE_OPTIONAL,
	}
}

// BPEEntries
// Files of a byte-level BPE vocabulary.
func BPEEntries() ResourceEntryDefs {
	return ResourceEntryDefs{
		"vocab.json":              RESOURCE_REQUIRED,
		"merges.txt":              RESOURCE_REQUIRED,
		"special_tokens_map.json": RESOURCE_OPTIONAL,
	}
}

// Resolver fetches resources from local directories, HTTP servers or the
// Hugging Face Hub.
type Resolver struct {
	// Auth is sent as a bearer token when non-empty.
	Auth   string
	HubURL string
	Client *http.Client
	Logger zerolog.Logger
}

// NewResolver returns a Resolver against the public Hub.
func NewResolver(auth string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		Auth:   auth,
		HubURL: DefaultHubURL,
		Client: http.DefaultClient,
		Logger: logger,
	}
}

func (r *Resolver) client() *http.Client {
	if r.Client == nil {
		return http.DefaultClient
	}
	return r.Client
}

func (r *Resolver) hubURL() string {
	if r.HubURL == "" {
		return DefaultHubURL
	}
	return strings.TrimRight(r.HubURL, "/")
}

// BaseURL returns the Hub base URL without a trailing slash.
func (r *Resolver) BaseURL() string {
	return r.hubURL()
}

// HubFileURL returns the download URL of a file in a Hub repository.
func (r *Resolver) HubFileURL(id string) string {
	return r.hubURL() + "/" + id + "/resolve/main"
}

// FetchHuggingFace
// Wrapper around FetchHTTP that fetches a resource from the Hub.
func (r *Resolver) FetchHuggingFace(ctx context.Context, id string,
	rsrc string) (io.ReadCloser, error) {
	return r.FetchHTTP(ctx, r.HubFileURL(id), rsrc)
}

// SizeHuggingFace
// Wrapper around SizeHTTP that gets the size of a resource from the Hub.
func (r *Resolver) SizeHuggingFace(ctx context.Context, id string,
	rsrc string) (uint64, error) {
	return r.SizeHTTP(ctx, r.HubFileURL(id), rsrc)
}

func isValidUrl(toTest string) bool {
	_, err := url.ParseRequestURI(toTest)
	if err != nil {
		return false
	}

	u, err := url.Parse(toTest)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}

	return true
}

// isLocalDir reports whether uri names an existing directory, in which case
// resources are never looked up remotely.
func isLocalDir(uri string) bool {
	stat, err := os.Stat(uri)
	return err == nil && stat.IsDir()
}

// Fetch
// Given a base URI and a resource name, determines if the resource is local,
// remote, or from the Hub. If the resource is local, it returns a file handle
// to the resource. Otherwise it fetches the resource and returns the body.
func (r *Resolver) Fetch(ctx context.Context, uri string,
	rsrc string) (io.ReadCloser, error) {
	if isValidUrl(uri) {
		return r.FetchHTTP(ctx, uri, rsrc)
	} else if _, err := os.Stat(path.Join(uri, rsrc)); !os.IsNotExist(err) ||
		isLocalDir(uri) {
		handle, fileErr := os.Open(path.Join(uri, rsrc))
		if fileErr != nil {
			return nil, errors.Wrapf(fileErr, "error opening %s/%s", uri,
				rsrc)
		}
		return handle, nil
	}
	return r.FetchHuggingFace(ctx, uri, rsrc)
}

// Size
// Given a base URI and a resource name, determine the size of the resource.
func (r *Resolver) Size(ctx context.Context, uri string,
	rsrc string) (uint64, error) {
	if isValidUrl(uri) {
		return r.SizeHTTP(ctx, uri, rsrc)
	} else if fsz, err := os.Stat(path.Join(uri, rsrc)); !os.IsNotExist(err) ||
		isLocalDir(uri) {
		if err != nil {
			return 0, err
		}
		return uint64(fsz.Size()), nil
	}
	return r.SizeHuggingFace(ctx, uri, rsrc)
}

// OpenEntry
// Opens a local file as a memory-mapped ResourceEntry.
func OpenEntry(filePath string) (*ResourceEntry, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	data, unmap, mmapErr := readMmap(file)
	if mmapErr != nil {
		file.Close()
		return nil, errors.Wrapf(mmapErr, "error trying to mmap %s",
			filePath)
	}
	return &ResourceEntry{
		Path:  filePath,
		Data:  data,
		file:  file,
		unmap: unmap,
	}, nil
}

// Download
// Resolves `rsrc` under `uri` into `targetPath`. A file already at
// `targetPath` with the remote size is reused; otherwise the resource is
// downloaded, with progress logged every 10 seconds.
func (r *Resolver) Download(ctx context.Context, uri string, rsrc string,
	targetPath string) (*ResourceEntry, error) {
	rsrcSize, sizeErr := r.Size(ctx, uri, rsrc)
	if sizeErr != nil {
		return nil, sizeErr
	}
	return r.download(ctx, uri, rsrc, targetPath, rsrcSize)
}

func (r *Resolver) download(ctx context.Context, uri string, rsrc string,
	targetPath string, rsrcSize uint64) (*ResourceEntry, error) {
	if targetStat, statErr := os.Stat(targetPath); statErr == nil &&
		rsrcSize != 0 && uint64(targetStat.Size()) == rsrcSize {
		r.Logger.Debug().Msgf("Skipping %s/%s... already exists, "+
			"and of the correct size.", uri, rsrc)
		return OpenEntry(targetPath)
	}

	rsrcReader, fetchErr := r.Fetch(ctx, uri, rsrc)
	if fetchErr != nil {
		return nil, errors.Wrapf(fetchErr, "cannot retrieve `%s` from `%s`",
			rsrc, uri)
	}
	defer rsrcReader.Close()

	if dirErr := os.MkdirAll(filepath.Dir(targetPath), 0755); dirErr != nil {
		return nil, dirErr
	}
	// Write beside the target and rename; an interrupted download never
	// passes the size check on the next run.
	partPath := targetPath + ".part"
	rsrcFile, openErr := os.OpenFile(partPath,
		os.O_TRUNC|os.O_RDWR|os.O_CREATE, 0644)
	if openErr != nil {
		return nil, errors.Wrapf(openErr, "error opening '%s' for write",
			partPath)
	}
	counter := &WriteCounter{
		Last:   time.Now(),
		Path:   fmt.Sprintf("%s/%s", uri, rsrc),
		Size:   rsrcSize,
		Logger: r.Logger,
	}
	bytesDownloaded, ioErr := io.Copy(rsrcFile,
		io.TeeReader(rsrcReader, counter))
	closeErr := rsrcFile.Close()
	if ioErr == nil {
		ioErr = closeErr
	}
	if ioErr != nil {
		os.Remove(partPath)
		return nil, errors.Wrapf(ioErr, "error downloading '%s'", rsrc)
	}
	if renameErr := os.Rename(partPath, targetPath); renameErr != nil {
		return nil, renameErr
	}
	r.Logger.Info().Msgf("Downloaded %s/%s... %s completed.", uri, rsrc,
		humanize.Bytes(uint64(bytesDownloaded)))
	return OpenEntry(targetPath)
}

// ResolveResources
// Resolves every resource in `defs` at `uri` into `dir`, downloading what is
// missing or of the wrong size. Missing required resources are an error, as
// is finding none of the RESOURCE_ONEOF resources.
func (r *Resolver) ResolveResources(ctx context.Context, uri string,
	dir string, defs ResourceEntryDefs) (Resources, error) {
	foundResources := make(Resources, len(defs))
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	oneOf := make([]string, 0)
	oneOfFound := false
	for _, file := range names {
		flag := defs[file]
		if flag&RESOURCE_ONEOF != 0 {
			oneOf = append(oneOf, file)
			if oneOfFound {
				continue
			}
		}
		r.Logger.Debug().Msgf("Resolving %s/%s... ", uri, file)
		rsrcSize, sizeErr := r.Size(ctx, uri, file)
		if sizeErr != nil {
			if ctx.Err() != nil {
				foundResources.Cleanup()
				return nil, ctx.Err()
			}
			if flag&RESOURCE_REQUIRED != 0 {
				foundResources.Cleanup()
				return nil, errors.Wrapf(sizeErr,
					"cannot retrieve required `%s` from `%s`", file, uri)
			}
			r.Logger.Debug().Msgf(
				"Resolved %s/%s... not there, not required.", uri, file)
			continue
		}
		entry, downloadErr := r.download(ctx, uri, file,
			filepath.Join(dir, file), rsrcSize)
		if downloadErr != nil {
			foundResources.Cleanup()
			return nil, downloadErr
		}
		foundResources[file] = entry
		if flag&RESOURCE_ONEOF != 0 {
			oneOfFound = true
		}
	}
	if len(oneOf) > 0 && !oneOfFound {
		return nil, errors.Errorf("none of %s found at `%s`",
			strings.Join(oneOf, ", "), uri)
	}
	return foundResources, nil
}

// CacheDir
// Directory resources for `id` are stored in under `base`. An empty base
// falls back to the user cache directory.
func CacheDir(base string, id string) (string, error) {
	if base == "" {
		userCache, err := os.UserCacheDir()
		if err != nil {
			return "", errors.Wrap(err, "no cache directory configured")
		}
		base = filepath.Join(userCache, "codemask")
	}
	safe := strings.NewReplacer("/", "__", ":", "_", "\\", "__").Replace(
		strings.TrimPrefix(strings.TrimPrefix(id, "https://"), "http://"))
	return filepath.Join(base, safe), nil
}
