package form

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
	"w9-uploads/core"
	"w9-uploads/handlers/auth"
	"w9-uploads/uploads"
	"w9-uploads/web"

	"github.com/sirupsen/logrus"
)

// SubmitPath is where the public form posts to.
const SubmitPath = "/admin-post.php"

type formPage struct {
	Action     string
	NonceField string
	Nonce      string
}

// HandleForm renders the public upload form with a fresh nonce.
func HandleForm(nonces *auth.Nonces) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nonce, err := nonces.Issue(auth.UploadFormAction)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to issue form nonce")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		page := formPage{Action: SubmitPath, NonceField: auth.UploadFormField, Nonce: nonce}
		if err := web.Templates.ExecuteTemplate(w, "form.html", page); err != nil {
			logrus.WithField("error", err).Error("Failed to render form")
		}
	}
}

// Submission handles one public form post. Every outcome is a redirect to
// the referrer with a status query parameter.
type Submission struct {
	Dir      *uploads.Directory
	Nonces   *auth.Nonces
	Referrer string
	MaxBytes int64
	Now      func() time.Time
}

func HandleSubmit(dir *uploads.Directory, nonces *auth.Nonces, referrer string, maxBytes int64) http.HandlerFunc {
	s := &Submission{Dir: dir, Nonces: nonces, Referrer: referrer, MaxBytes: maxBytes}
	return s.ServeHTTP
}

func (s *Submission) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Submission) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := s.process(w, r)
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
	http.Redirect(w, r, StatusURL(s.Referrer, status), http.StatusFound)
}

func (s *Submission) process(w http.ResponseWriter, r *http.Request) core.Status {
	if s.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		logrus.WithField("error", err).Warn("Failed to parse upload form")
		return core.StatusNotAuthorized
	}

	if !s.Nonces.Verify(r.FormValue(auth.UploadFormField), auth.UploadFormAction) {
		return core.StatusNotAuthorized
	}

	// Only the emptiness check trims; the stored name keeps surrounding spaces.
	name := r.FormValue("name")
	if strings.TrimSpace(name) == "" {
		return core.StatusEmptyName
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			logrus.WithField("error", err).Warn("Failed to read uploaded file")
		}
		return core.StatusNoFile
	}
	defer file.Close()

	ext := uploads.Extension(header.Filename)
	if !uploads.ValidExtension(ext) {
		logrus.WithField("file", header.Filename).Info("Rejected upload with invalid extension")
		return core.StatusNotValid
	}

	stored, err := s.Dir.Save(file, uploads.StoredName(name, ext, s.now()))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"error": err,
			"file":  header.Filename,
		}).Error("Failed to store upload")
		return core.StatusFail
	}

	logrus.WithFields(logrus.Fields{
		"file": stored,
		"size": header.Size,
	}).Info("W9 uploaded")
	return core.StatusSuccess
}

// StatusURL appends the status query parameter to referrer.
func StatusURL(referrer string, status core.Status) string {
	u, err := url.Parse(referrer)
	if err != nil {
		return referrer + "?status=" + url.QueryEscape(string(status))
	}
	q := u.Query()
	q.Set("status", string(status))
	u.RawQuery = q.Encode()
	return u.String()
}
