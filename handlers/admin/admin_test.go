package admin

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
	"w9-uploads/core"
	"w9-uploads/handlers/auth"
	"w9-uploads/middleware"
	"w9-uploads/settings"
	"w9-uploads/stores/memory"
	"w9-uploads/uploads"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner   = core.User{ID: 4, Login: "laud", Name: "Laud", Email: "laud@example.org", Roles: []string{"administrator"}}
	manager = core.User{ID: 7, Login: "mgr", Name: "Manager", Email: "mgr@example.org", Roles: []string{"administrator", "w9_manager"}}
	editor  = core.User{ID: 9, Login: "ed", Name: "Editor", Email: "ed@example.org", Roles: []string{"administrator"}}
)

type fixture struct {
	handler  *Handler
	settings *settings.Service
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "w9-uploads")
	require.NoError(t, os.Mkdir(dir, 0o700))

	svc := settings.NewService(memory.NewStore(), []int{4, 13})
	require.NoError(t, svc.Bootstrap(ctx))
	_, err := svc.AssignManagers(ctx, []string{"7"})
	require.NoError(t, err)

	return &fixture{
		handler: &Handler{
			Dir:      uploads.NewDirectory(dir),
			Settings: svc,
			Users:    auth.NewDirectory([]core.User{owner, manager, editor}),
			Menu: []core.MenuItem{
				{Slug: "index.php", Title: "Dashboard", URL: "/admin"},
				{Slug: "stf_w9_uploads_menu_page", Title: "W9 Uploads", URL: PagePath},
			},
			TempDir: t.TempDir(),
			Now:     func() time.Time { return time.Date(2024, time.March, 7, 12, 0, 0, 0, time.UTC) },
		},
		settings: svc,
		dir:      dir,
	}
}

func (f *fixture) addFiles(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(name), 0o600))
	}
}

func (f *fixture) do(t *testing.T, u core.User, method string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, PagePath, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req = req.WithContext(middleware.WithUser(req.Context(), &u))
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestCommands(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, PagePath,
		strings.NewReader("assign_manager=1&download_files=1&delete_files=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.NoError(t, req.ParseForm())

	assert.Equal(t, []Command{Download, Delete, AssignManagers}, Commands(req))
	assert.Equal(t, "delete_files", Delete.String())
}

func TestPage_Get(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, "b.pdf", "a.jpg")

	rr := f.do(t, owner, http.MethodGet, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "There are currently <strong>2</strong> W9 files")
	assert.Contains(t, body, "FILE TOTAL: <strong class=\"file-total\">2</strong>")
	assert.Less(t, strings.Index(body, "<li>b.pdf</li>"), strings.Index(body, "<li>a.jpg</li>"))
	assert.Contains(t, body, "themes/start/jquery-ui.css")
	assert.NotContains(t, body, "error_message\"")
}

func TestPage_SingularCount(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, "only.pdf")

	rr := f.do(t, manager, http.MethodGet, nil)

	assert.Contains(t, rr.Body.String(), "There is currently <strong>1</strong> W9 file in")
}

func TestPage_SettingsTabOwnersOnly(t *testing.T) {
	f := newFixture(t)

	ownerBody := f.do(t, owner, http.MethodGet, nil).Body.String()
	assert.Contains(t, ownerBody, `href="#tabs-4"`)
	assert.Contains(t, ownerBody, `value="7" checked />`)
	assert.Contains(t, ownerBody, `value="4" checked disabled />`)
	assert.Contains(t, ownerBody, `value="9" />`)

	managerBody := f.do(t, manager, http.MethodGet, nil).Body.String()
	assert.NotContains(t, managerBody, `href="#tabs-4"`)
	assert.NotContains(t, managerBody, `name="managers[]"`)
}

func TestPage_PureManagerMenu(t *testing.T) {
	f := newFixture(t)
	f.handler.Menu = append(f.handler.Menu,
		core.MenuItem{Slug: "tools.php", Title: "Tools", URL: "/admin/tools", HasSubmenu: true},
		core.MenuItem{Slug: "wp_csv_to_db_menu_page", Title: "CSV to DB", URL: "/admin/csv"},
	)

	body := f.do(t, manager, http.MethodGet, nil).Body.String()
	assert.Contains(t, body, ">W9 Uploads</a>")
	assert.NotContains(t, body, ">Tools</a>")
	assert.NotContains(t, body, ">CSV to DB</a>")

	body = f.do(t, owner, http.MethodGet, nil).Body.String()
	assert.Contains(t, body, ">Tools</a>")
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, "Jane-Doe_3.7.2024-09.05PM.pdf", "scan.JPG")

	rr := f.do(t, manager, http.MethodPost, url.Values{"download_files": {"Download All W9s"}})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=4culture-w9-uploads_3-7-2024.zip", rr.Header().Get("Content-Disposition"))
	assert.Equal(t, strconv.Itoa(rr.Body.Len()), rr.Header().Get("Content-Length"))

	zr, err := zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	assert.ElementsMatch(t, []string{"Jane-Doe_3.7.2024-09.05PM.pdf", "scan.JPG"}, names)

	// Source files stay and the temp archive is gone.
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	tmp, err := os.ReadDir(f.handler.TempDir)
	require.NoError(t, err)
	assert.Empty(t, tmp)
}

func TestDownload_EmptyDirectory(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, manager, http.MethodPost, url.Values{"download_files": {"1"}})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "* Error: "+MsgEmptyDirectory)
}

func TestDownload_MissingDirectoryIsCreated(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.dir))

	rr := f.do(t, manager, http.MethodPost, url.Values{"download_files": {"1"}})

	assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
	zr, err := zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len()))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
	assert.DirExists(t, f.dir)
}

func TestDownload_DirectoryCannotBeCreated(t *testing.T) {
	f := newFixture(t)
	f.handler.Dir = uploads.NewDirectory(filepath.Join(f.dir, "missing", "w9-uploads"))

	rr := f.do(t, manager, http.MethodPost, url.Values{"download_files": {"1"}})

	body := rr.Body.String()
	assert.Contains(t, body, "Couldn&#39;t find the W9 Uploads directory")
	assert.Contains(t, body, "Please make sure it exists and try again.")
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, "a.pdf", "b.jpeg", "notes.txt")

	rr := f.do(t, manager, http.MethodPost, url.Values{"delete_files": {"1"}})

	body := rr.Body.String()
	assert.Contains(t, body, "* Success!: "+MsgFilesDeleted)
	assert.Contains(t, body, "There are currently <strong>0</strong> W9 files")
	assert.True(t, f.handler.Dir.IsEmpty())
	assert.FileExists(t, filepath.Join(f.dir, "notes.txt"))
}

func TestDelete_EmptyDirectory(t *testing.T) {
	f := newFixture(t)

	body := f.do(t, manager, http.MethodPost, url.Values{"delete_files": {"1"}}).Body.String()

	assert.Contains(t, body, "* Error: "+MsgEmptyDirectory)
	assert.NotContains(t, body, MsgFilesDeleted)
}

func TestAssignManagers(t *testing.T) {
	f := newFixture(t)

	body := f.do(t, owner, http.MethodPost, url.Values{
		"assign_manager": {"Submit"},
		"managers[]":     {"9", "13"},
	}).Body.String()

	assert.Contains(t, body, "* Success!: "+MsgManagersUpdated)
	allowed, err := f.settings.AllowedManagers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{4, 13, 9}, allowed)
}

func TestAssignManagers_EmptySelection(t *testing.T) {
	f := newFixture(t)

	f.do(t, owner, http.MethodPost, url.Values{"assign_manager": {"Submit"}})

	loaded, err := f.settings.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{4, 13}, loaded.Managers)
}

func TestAssignManagers_NonOwner(t *testing.T) {
	f := newFixture(t)

	body := f.do(t, manager, http.MethodPost, url.Values{
		"assign_manager": {"Submit"},
		"managers[]":     {"9"},
	}).Body.String()

	assert.Contains(t, body, MsgOwnersOnly)
	allowed, err := f.settings.AllowedManagers(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, allowed, 9)
}

func TestAllCommandsRun(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, "a.pdf")

	body := f.do(t, owner, http.MethodPost, url.Values{
		"delete_files":   {"1"},
		"assign_manager": {"1"},
	}).Body.String()

	assert.Contains(t, body, MsgFilesDeleted)
	assert.Contains(t, body, MsgManagersUpdated)
}

func TestAllCommandsRun_AfterDownload(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, "a.pdf")

	rr := f.do(t, owner, http.MethodPost, url.Values{
		"download_files": {"1"},
		"delete_files":   {"1"},
		"assign_manager": {"1"},
	})

	assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
	zr, err := zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "a.pdf", zr.File[0].Name)
	assert.NotContains(t, rr.Body.String(), "<html")

	assert.Equal(t, 0, f.handler.Dir.Count())
	allowed, err := f.settings.AllowedManagers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{4, 13}, allowed)
}

func TestHandleReport(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, "b.PDF", "a.pdf", ".hidden.pdf")

	rr := httptest.NewRecorder()
	f.handler.HandleReport(rr, httptest.NewRequest(http.MethodGet, "/admin/api/w9-uploads", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var report struct {
		Count int `json:"count"`
		Files []struct {
			Name string `json:"name"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Count)
	require.Len(t, report.Files, 2)
	assert.Equal(t, "a.pdf", report.Files[0].Name)
	assert.Equal(t, "b.PDF", report.Files[1].Name)
}

func TestHandleReport_Empty(t *testing.T) {
	f := newFixture(t)

	rr := httptest.NewRecorder()
	f.handler.HandleReport(rr, httptest.NewRequest(http.MethodGet, "/admin/api/w9-uploads", nil))

	assert.JSONEq(t, `{"count":0,"files":[]}`, rr.Body.String())
}
