// Package proofs stores payment screenshots under opaque handles and hands
// out short-lived signed URLs to read them back.
package proofs

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxUploadSize caps a single proof image.
const MaxUploadSize = 5 << 20

var (
	ErrNotImage     = errors.New("proof must be a JPEG, PNG or WebP image")
	ErrTooLarge     = errors.New("proof image is too large")
	ErrBadHandle    = errors.New("unknown proof handle")
	ErrBadSignature = errors.New("invalid or expired proof link")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// LocalStore keeps proofs on local disk.
type LocalStore struct {
	dir     string
	baseURL string
	secret  []byte
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewLocalStore(dir, baseURL, secret string, logger *zap.SugaredLogger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create proof dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: baseURL, secret: []byte(secret), logger: logger, now: time.Now}, nil
}

// Upload stores an image and returns its handle.
func (s *LocalStore) Upload(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return "", fmt.Errorf("read proof: %w", err)
	}
	if len(data) > MaxUploadSize {
		return "", ErrTooLarge
	}
	mt := mimetype.Detect(data)
	ext, ok := allowedTypes[mt.String()]
	if !ok {
		return "", ErrNotImage
	}

	handle := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, handle), data, 0o640); err != nil {
		return "", fmt.Errorf("write proof: %w", err)
	}
	s.logger.Infow("proof stored", "handle", handle, "type", mt.String(), "size", len(data))
	return handle, nil
}

// SignedURL returns a link to handle valid for ttl.
func (s *LocalStore) SignedURL(handle string, ttl time.Duration) (string, time.Time, error) {
	if _, err := s.path(handle); err != nil {
		return "", time.Time{}, err
	}
	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(handle, expires))
	return fmt.Sprintf("%s/proofs/%s?%s", s.baseURL, url.PathEscape(handle), q.Encode()), time.Unix(expires, 0), nil
}

// Open checks the signature and expiry of a link and opens the file.
func (s *LocalStore) Open(handle, expires, sig string) (io.ReadSeeker, string, error) {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return nil, "", ErrBadSignature
	}
	want := s.sign(handle, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return nil, "", ErrBadSignature
	}
	p, err := s.path(handle)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, "", ErrBadHandle
	}
	return bytes.NewReader(data), mimetype.Detect(data).String(), nil
}

func (s *LocalStore) sign(handle string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", handle, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// path resolves a handle, rejecting anything that is not a bare uuid file name.
func (s *LocalStore) path(handle string) (string, error) {
	ext := filepath.Ext(handle)
	if _, err := uuid.Parse(handle[:len(handle)-len(ext)]); err != nil {
		return "", ErrBadHandle
	}
	known := false
	for _, e := range allowedTypes {
		if e == ext {
			known = true
			break
		}
	}
	if !known {
		return "", ErrBadHandle
	}
	return filepath.Join(s.dir, handle), nil
}
