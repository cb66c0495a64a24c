// Package artifact serves the static files an executor downloads
// before it can launch: the framework jar, the Exhibitor and
// ZooKeeper distributions, a JDK archive, and the optional S3
// credentials and default-config files, per spec.md §6.
package artifact

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	log "github.com/golang/glog"
)

// route pairs a URL prefix with the directory it serves files from.
type route struct {
	prefix string
	dir    string
}

// Server is the artifact HTTP server. Every configured directory is
// checked to exist at construction time; a missing directory is fatal
// per spec.md §7 ("Artifact missing on disk at startup — fatal").
type Server struct {
	routes []route
}

// Dirs names the artifact directories the server exposes. S3Credentials
// and DefaultConfig may be empty, in which case those routes are not
// registered.
type Dirs struct {
	Jar           string
	Exhibitor     string
	ZooKeeper     string
	JDK           string
	S3Credentials string
	DefaultConfig string
}

// New validates every configured directory exists and returns a Server
// ready to Mux(). It returns an error rather than exiting so the
// caller controls the fatal-at-startup policy.
func New(dirs Dirs) (*Server, error) {
	s := &Server{}
	s.addRoute("/jar/", dirs.Jar)
	s.addRoute("/exhibitor/", dirs.Exhibitor)
	s.addRoute("/zookeeper/", dirs.ZooKeeper)
	s.addRoute("/jdk/", dirs.JDK)
	if dirs.S3Credentials != "" {
		s.addRoute("/s3credentials/", dirs.S3Credentials)
	}
	if dirs.DefaultConfig != "" {
		s.addRoute("/defaultconfig/", dirs.DefaultConfig)
	}

	for _, r := range s.routes {
		if info, err := os.Stat(r.dir); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("artifact: required directory %s for route %s is missing: %v", r.dir, r.prefix, err)
		}
	}
	return s, nil
}

func (s *Server) addRoute(prefix, dir string) {
	s.routes = append(s.routes, route{prefix: prefix, dir: dir})
}

// Mux builds the net/http.ServeMux the caller listens with.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	for _, r := range s.routes {
		mux.HandleFunc(r.prefix, s.serve(r))
	}
	return mux
}

func (s *Server) serve(r route) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		name := filepath.Base(req.URL.Path)
		if name == "." || name == "/" || name == "" {
			http.NotFound(w, req)
			return
		}
		path := filepath.Join(r.dir, name)

		f, err := os.Open(path)
		if err != nil {
			log.Errorf("artifact: %s not found under %s: %v", name, r.dir, err)
			http.NotFound(w, req)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		http.ServeContent(w, req, name, statModTime(f), f)
	}
}

func statModTime(f *os.File) time.Time {
	if info, err := f.Stat(); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}
