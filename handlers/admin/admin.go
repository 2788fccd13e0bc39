// Package admin serves the uploads back-office page: archive download, bulk
// delete, the file report and manager assignment.
package admin

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"
	"w9-uploads/access"
	"w9-uploads/core"
	"w9-uploads/middleware"
	"w9-uploads/settings"
	"w9-uploads/uploads"
	"w9-uploads/web"

	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// PagePath is the route of the admin page.
const PagePath = "/admin/w9-uploads"

const (
	MsgEmptyDirectory  = "The W9 Uploads directory is empty."
	MsgArchiveExported = "Archive exported successfully"
	MsgFilesDeleted    = "Files deleted successfully"
	MsgManagersUpdated = "Managers updated successfully"
	MsgManagersFailed  = "Something went wrong. Managers could not be updated."
	MsgOwnersOnly      = "Only plugin owners can assign managers."
)

// Command is one of the actions a page POST can trigger.
type Command int

const (
	Download Command = iota
	Delete
	AssignManagers
)

var commandFields = map[Command]string{
	Download:       "download_files",
	Delete:         "delete_files",
	AssignManagers: "assign_manager",
}

func (c Command) String() string {
	return commandFields[c]
}

// Commands returns every command whose button is present in the posted
// form, in execution order.
func Commands(r *http.Request) []Command {
	var cmds []Command
	for _, c := range []Command{Download, Delete, AssignManagers} {
		if _, ok := r.PostForm[commandFields[c]]; ok {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

type Handler struct {
	Dir      *uploads.Directory
	Settings *settings.Service
	Users    core.UserDirectory
	Menu     []core.MenuItem
	// TempDir holds archives while they are streamed; empty means os.TempDir.
	TempDir string
	Now     func() time.Time
}

type messages struct {
	Errors    []string
	Successes []string
}

func (m *messages) fail(msg string)    { m.Errors = append(m.Errors, msg) }
func (m *messages) succeed(msg string) { m.Successes = append(m.Successes, msg) }

type userRow struct {
	ID       int
	Name     string
	Email    string
	Checked  bool
	Disabled bool
}

type pageData struct {
	Errors       []string
	Successes    []string
	User         *core.User
	Menu         []core.MenuItem
	Theme        string
	DirLabel     string
	Count        int
	Files        []core.StoredFile
	ShowSettings bool
	Users        []userRow
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) dirLabel() string {
	return filepath.ToSlash(h.Dir.Path()) + "/"
}

func (h *Handler) missingDirMessage() string {
	return fmt.Sprintf("Couldn't find the W9 Uploads directory (%q). Please make sure it exists and try again.", h.dirLabel())
}

// ServeHTTP runs every posted command and renders the page. When a download
// streams an archive, the remaining commands still run but the page is not
// rendered, since the response body is the archive.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, middleware.ForbiddenMessage, http.StatusForbidden)
		return
	}

	var (
		msgs     messages
		streamed bool
	)
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		for _, cmd := range Commands(r) {
			switch cmd {
			case Download:
				streamed = h.download(w, r, &msgs)
			case Delete:
				h.delete(&msgs)
			case AssignManagers:
				h.assignManagers(r, user, &msgs)
			}
		}
	}

	if streamed {
		return
	}
	h.render(w, r, user, msgs)
}

// ready decides whether a download or delete may proceed. A missing
// directory is created and the action proceeds on the new empty directory.
func (h *Handler) ready(msgs *messages) bool {
	if !h.Dir.Exists() {
		if _, err := h.Dir.Ensure(); err != nil {
			logrus.WithFields(logrus.Fields{
				"error": err,
				"path":  h.Dir.Path(),
			}).Error("Failed to create upload directory")
			msgs.fail(h.missingDirMessage())
			return false
		}
		return true
	}
	if h.Dir.IsEmpty() {
		msgs.fail(MsgEmptyDirectory)
		return false
	}
	return true
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request, msgs *messages) bool {
	if !h.ready(msgs) {
		return false
	}
	if err := h.streamArchive(w); err != nil {
		logrus.WithField("error", err).Error("Failed to export archive")
		msgs.fail("Archive could not be exported.")
		return false
	}
	logrus.WithField("path", r.URL.Path).Info(MsgArchiveExported)
	return true
}

// streamArchive builds the zip in a temp file so Content-Length is known
// before the first byte is sent, then removes it.
func (h *Handler) streamArchive(w http.ResponseWriter) error {
	now := h.now()
	tmpPath := filepath.Join(h.tempDir(), "w9-archive-"+ulid.Make().String()+".zip")
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer os.Remove(tmpPath)
	defer tmp.Close()

	added, err := h.Dir.WriteArchive(tmp)
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind archive: %w", err)
	}

	name := uploads.ArchiveName(now)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, tmp); err != nil {
		// Headers are already sent; the client sees a truncated body.
		logrus.WithFields(logrus.Fields{"error": err, "file": name}).Warn("Archive stream interrupted")
	}
	logrus.WithFields(logrus.Fields{"file": name, "files": added}).Debug("Archive streamed")
	return nil
}

func (h *Handler) tempDir() string {
	if h.TempDir != "" {
		return h.TempDir
	}
	return os.TempDir()
}

func (h *Handler) delete(msgs *messages) {
	if !h.ready(msgs) {
		return
	}
	h.Dir.DeleteAll()
	msgs.succeed(MsgFilesDeleted)
}

func (h *Handler) assignManagers(r *http.Request, user *core.User, msgs *messages) {
	if !h.Settings.IsOwner(user.ID) {
		logrus.WithField("user_id", user.ID).Warn("Non-owner tried to assign managers")
		msgs.fail(MsgOwnersOnly)
		return
	}
	if _, err := h.Settings.AssignManagers(r.Context(), r.PostForm["managers[]"]); err != nil {
		logrus.WithFields(logrus.Fields{
			"error":   err,
			"user_id": user.ID,
		}).Error("Failed to assign managers")
		msgs.fail(MsgManagersFailed)
		return
	}
	msgs.succeed(MsgManagersUpdated)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, user *core.User, msgs messages) {
	ctx := r.Context()
	allowed, err := h.Settings.AllowedManagers(ctx)
	if err != nil {
		logrus.WithField("error", err).Error("Failed to load managers")
		allowed = h.Settings.Owners()
	}

	files, err := h.Dir.List()
	if err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "path": h.Dir.Path()}).Error("Failed to list uploads")
	}

	data := pageData{
		Errors:       msgs.Errors,
		Successes:    msgs.Successes,
		User:         user,
		Menu:         access.FilterMenu(user, allowed, h.Menu),
		Theme:        h.Settings.Theme(ctx),
		DirLabel:     h.dirLabel(),
		Count:        len(files),
		Files:        files,
		ShowSettings: h.Settings.IsOwner(user.ID),
	}
	if data.ShowSettings {
		for _, u := range h.Users.All() {
			data.Users = append(data.Users, userRow{
				ID:       u.ID,
				Name:     u.DisplayName(),
				Email:    u.Email,
				Checked:  slices.Contains(allowed, u.ID),
				Disabled: h.Settings.IsOwner(u.ID),
			})
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := web.Templates.ExecuteTemplate(w, "admin.html", data); err != nil {
		logrus.WithField("error", err).Error("Failed to render admin page")
	}
}

type fileReport struct {
	Count int               `json:"count"`
	Files []core.StoredFile `json:"files"`
}

// HandleReport returns the current file count and listing as JSON.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	files, err := h.Dir.List()
	if err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "path": h.Dir.Path()}).Error("Failed to list uploads")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to list uploads"})
		return
	}
	if files == nil {
		files = []core.StoredFile{}
	}
	render.JSON(w, r, fileReport{Count: len(files), Files: files})
}
