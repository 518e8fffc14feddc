package fm_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fontkit/font-manager/internal/database"
	"github.com/fontkit/font-manager/internal/platform"
	"github.com/fontkit/font-manager/pkg/fm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

// Mock font source for testing
type mockSource struct {
	name  string
	fonts map[string][]byte // name -> download content
}

func (m *mockSource) Name() string {
	return m.name
}

func (m *mockSource) Search(_ context.Context, name string) ([]fm.Font, error) {
	if _, ok := m.fonts[name]; !ok {
		return nil, nil
	}
	return []fm.Font{{Name: name, Source: m.name}}, nil
}

func (m *mockSource) Download(_ context.Context, font fm.Font) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.fonts[font.Name])), nil
}

var _ = Describe("DefaultManager", func() {
	var (
		ctx     context.Context
		root    string
		plat    *mockPlatform
		cache   *database.Cache
		manager *fm.DefaultManager
		sysDir  string
		userDir string
	)

	newManager := func() *fm.DefaultManager {
		m, err := fm.NewManager(fm.Options{
			Platform: plat,
			Cache:    cache,
			Logger:   fm.NewNopLogger(),
			Workers:  2,
		})
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
		plat = &mockPlatform{root: root}
		sysDir = filepath.Join(root, "system")
		userDir = filepath.Join(root, "user")

		writeFile(filepath.Join(sysDir, "go", "Go-Regular.ttf"), goregular.TTF)
		writeFile(filepath.Join(sysDir, "go", "Go-Bold.ttf"), gobold.TTF)

		var err error
		cache, err = database.Open(database.Memory)
		Expect(err).NotTo(HaveOccurred())
		manager = newManager()
	})

	AfterEach(func() {
		cache.Close()
	})

	It("should require a platform and a cache", func() {
		_, err := fm.NewManager(fm.Options{Cache: cache})
		Expect(err).To(HaveOccurred())
		_, err = fm.NewManager(fm.Options{Platform: plat})
		Expect(err).To(HaveOccurred())
	})

	Describe("Load", func() {
		It("should fill an empty cache and then serve it", func() {
			report, err := manager.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Added).To(Equal(2))

			catalog, err := manager.Catalog(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(catalog.Names()).To(Equal([]string{"Go"}))
			Expect(catalog.Family("Go").StyleNames()).To(Equal([]string{"Regular", "Bold"}))

			report, err = manager.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Changed()).To(BeFalse())
			Expect(report.Unchanged).To(Equal(2))

			at, err := manager.ScannedAt(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(at).To(BeTemporally("~", time.Now(), time.Minute))
		})

		It("should notice files added since the last run", func() {
			_, err := manager.Load(ctx)
			Expect(err).NotTo(HaveOccurred())

			writeFile(filepath.Join(userDir, "Go-Mono.ttf"), gomono.TTF)
			report, err := manager.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Added).To(Equal(1))
		})
	})

	Describe("Sync", func() {
		BeforeEach(func() {
			_, err := manager.Reload(ctx)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should add, update and remove files", func() {
			writeFile(filepath.Join(userDir, "Go-Mono.ttf"), gomono.TTF)
			writeFile(filepath.Join(sysDir, "go", "Go-Regular.ttf"), goitalic.TTF)
			Expect(os.Remove(filepath.Join(sysDir, "go", "Go-Bold.ttf"))).To(Succeed())

			report, err := manager.Sync(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(*report).To(Equal(fm.SyncReport{Added: 1, Removed: 1, Updated: 1}))

			catalog, err := manager.Catalog(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(catalog.Family("Go").StyleNames()).To(Equal([]string{"Italic"}))
			Expect(catalog.Family("Go Mono").Owner()).To(Equal(fm.User))
		})

		It("should not count files that are not fonts", func() {
			writeFile(filepath.Join(userDir, "Broken.ttf"), []byte("not really a font"))
			report, err := manager.Sync(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Changed()).To(BeFalse())
		})

		It("should fall back to walking directories when enumeration fails", func() {
			plat.enumErr = os.ErrPermission
			writeFile(filepath.Join(userDir, "Go-Mono.ttf"), gomono.TTF)
			report, err := manager.Sync(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Added).To(Equal(1))
		})

		It("should rebuild everything on reload", func() {
			report, err := manager.Reload(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Added).To(Equal(2))
			count, err := cache.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))
		})
	})

	Describe("InstallFiles and Uninstall", func() {
		BeforeEach(func() {
			_, err := manager.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should install into the user directory and update the caches", func() {
			src := writeFile(filepath.Join(root, "downloads", "Go-Mono.ttf"), gomono.TTF)
			res, err := manager.InstallFiles(ctx, src)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Installed).To(HaveLen(1))
			Expect(res.Installed[0]).To(HavePrefix(userDir))
			Expect(plat.cacheCalls).To(Equal(1))

			installed, err := manager.IsInstalled(ctx, "go mono")
			Expect(err).NotTo(HaveOccurred())
			Expect(installed).To(BeTrue())
		})

		It("should skip fonts already installed anywhere", func() {
			src := writeFile(filepath.Join(root, "downloads", "Copy.ttf"), goregular.TTF)
			res, err := manager.InstallFiles(ctx, src)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Installed).To(BeEmpty())
			Expect(res.Duplicates).To(HaveLen(1))
			Expect(plat.cacheCalls).To(Equal(0))
		})

		It("should uninstall user families only", func() {
			src := writeFile(filepath.Join(root, "downloads", "Go-Mono.ttf"), gomono.TTF)
			_, err := manager.InstallFiles(ctx, src)
			Expect(err).NotTo(HaveOccurred())

			Expect(manager.Uninstall(ctx, "Go Mono")).To(Succeed())
			installed, err := manager.IsInstalled(ctx, "Go Mono")
			Expect(err).NotTo(HaveOccurred())
			Expect(installed).To(BeFalse())

			Expect(manager.Uninstall(ctx, "Go")).To(MatchError(fm.ErrSystemFont))
			Expect(manager.Uninstall(ctx, "Missing")).To(MatchError(fm.ErrNotInstalled))
		})

		It("should remove the user's styles of a family installed system-wide", func() {
			src := writeFile(filepath.Join(root, "downloads", "Go-Italic.ttf"), goitalic.TTF)
			res, err := manager.InstallFiles(ctx, src)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Installed).To(HaveLen(1))

			Expect(manager.Uninstall(ctx, "Go")).To(Succeed())
			Expect(res.Installed[0]).NotTo(BeAnExistingFile())
			Expect(filepath.Join(sysDir, "go", "Go-Regular.ttf")).To(BeAnExistingFile())
			Expect(filepath.Join(sysDir, "go", "Go-Bold.ttf")).To(BeAnExistingFile())

			catalog, err := manager.Catalog(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(catalog.Family("Go").StyleNames()).To(Equal([]string{"Regular", "Bold"}))

			Expect(manager.Uninstall(ctx, "Go")).To(MatchError(fm.ErrSystemFont))
		})
	})

	Describe("Enable and Disable", func() {
		BeforeEach(func() {
			_, err := manager.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should persist disabled families to the fontconfig blacklist", func() {
			Expect(manager.Disable("Go")).To(Succeed())
			Expect(filepath.Join(root, "config", "conf.d", "78-Reject.conf")).To(BeAnExistingFile())

			catalog, err := manager.Catalog(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(catalog.Family("Go").Enabled).To(BeFalse())

			reopened := newManager()
			Expect(reopened.Blacklist().IsDisabled("Go")).To(BeTrue())

			Expect(reopened.Enable("Go")).To(Succeed())
			Expect(newManager().Blacklist().IsDisabled("Go")).To(BeFalse())
		})
	})

	Describe("collections", func() {
		BeforeEach(func() {
			writeFile(filepath.Join(userDir, "Go-Mono.ttf"), gomono.TTF)
			_, err := manager.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(manager.AddToCollection("Coding", "Go Mono")).To(Succeed())
		})

		It("should create collections on demand and persist them", func() {
			Expect(filepath.Join(root, "data", "Collections.xml")).To(BeAnExistingFile())
			c, err := newManager().Collections().Get("Coding")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Families).To(Equal([]string{"Go Mono"}))
		})

		It("should propagate enabled state to member families", func() {
			Expect(manager.SetCollectionEnabled("Coding", false)).To(Succeed())
			Expect(manager.Blacklist().IsDisabled("Go Mono")).To(BeTrue())

			Expect(manager.AddToCollection("Coding", "Go")).To(Succeed())
			Expect(manager.Blacklist().IsDisabled("Go")).To(BeTrue())

			Expect(manager.SetCollectionEnabled("Coding", true)).To(Succeed())
			Expect(manager.Blacklist().Families()).To(BeEmpty())

			Expect(manager.SetCollectionEnabled("Missing", true)).To(MatchError(fm.ErrCollectionNotFound))
		})

		It("should report membership in Info", func() {
			info, err := manager.Info(ctx, "Go Mono")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Collections).To(Equal([]string{"Coding"}))
			Expect(info.Owner()).To(Equal(fm.User))
			Expect(info.License.Name).NotTo(BeEmpty())

			_, err = manager.Info(ctx, "Missing")
			Expect(err).To(MatchError(fm.ErrNotInstalled))
		})

		It("should export the files of a collection", func() {
			Expect(manager.AddToCollection("Coding", "Go", "Not Installed")).To(Succeed())
			dest := filepath.Join(root, "export")

			n, err := manager.Export(ctx, "Coding", dest)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
			Expect(filepath.Join(dest, "Go-Mono", "Go-Mono.ttf")).To(BeAnExistingFile())
			Expect(filepath.Join(dest, "Go", "Go-Bold.ttf")).To(BeAnExistingFile())
			Expect(filepath.Join(dest, "Go", "Go-Regular.ttf")).To(BeAnExistingFile())

			_, err = manager.Export(ctx, "Missing", dest)
			Expect(err).To(MatchError(fm.ErrCollectionNotFound))
		})

		It("should export every file providing a style", func() {
			writeFile(filepath.Join(sysDir, "alt", "Go-Regular.ttf"), goregular.TTF)
			_, err := manager.Sync(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(manager.AddToCollection("Doubles", "Go")).To(Succeed())
			dest := filepath.Join(root, "export")

			n, err := manager.Export(ctx, "Doubles", dest)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
			Expect(filepath.Join(dest, "Go", "Go-Regular.ttf")).To(BeAnExistingFile())
			Expect(filepath.Join(dest, "Go", "Go-Regular-1.ttf")).To(BeAnExistingFile())
			Expect(filepath.Join(dest, "Go", "Go-Bold.ttf")).To(BeAnExistingFile())
		})
	})

	Describe("directories", func() {
		It("should scan added directories as user fonts", func() {
			extra := filepath.Join(root, "extra")
			writeFile(filepath.Join(extra, "Go-Mono.ttf"), gomono.TTF)

			Expect(manager.AddDirectory(ctx, extra)).To(Succeed())
			info, err := manager.Info(ctx, "Go Mono")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Owner()).To(Equal(fm.User))
			Expect(newManager().Directories().List()).To(Equal([]string{extra}))

			Expect(manager.RemoveDirectory(ctx, extra)).To(Succeed())
			_, err = manager.Info(ctx, "Go Mono")
			Expect(err).To(MatchError(fm.ErrNotInstalled))
		})

		It("should change the owner of fonts the platform already lists", func() {
			dotfonts := filepath.Join(root, "dotfonts")
			mono := writeFile(filepath.Join(dotfonts, "Go-Mono.ttf"), gomono.TTF)
			plat.refs = []platform.FaceRef{{Path: mono, Weight: -1, Width: -1, Slant: -1, Spacing: -1}}

			_, err := manager.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			info, err := manager.Info(ctx, "Go Mono")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Owner()).To(Equal(fm.System))

			Expect(manager.AddDirectory(ctx, dotfonts)).To(Succeed())
			info, err = manager.Info(ctx, "Go Mono")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Owner()).To(Equal(fm.User))

			// a fresh manager sees the same files but a different directory list
			report, err := newManager().Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Changed()).To(BeFalse())

			Expect(manager.RemoveDirectory(ctx, dotfonts)).To(Succeed())
			info, err = manager.Info(ctx, "Go Mono")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Owner()).To(Equal(fm.System))
		})
	})

	Describe("remote sources", func() {
		var source *mockSource

		BeforeEach(func() {
			_, err := manager.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			source = &mockSource{
				name: "mock",
				fonts: map[string][]byte{
					"Go Mono": makeZip(zipEntry{"Go-Mono.ttf", gomono.TTF}, zipEntry{"OFL.txt", []byte("license")}),
					"Empty":   makeZip(zipEntry{"README", []byte("nothing")}),
				},
			}
			Expect(manager.RegisterSource(source)).To(Succeed())
		})

		It("should reject nil and repeated sources", func() {
			Expect(manager.RegisterSource(nil)).To(HaveOccurred())
			Expect(manager.RegisterSource(&mockSource{name: "mock"})).To(HaveOccurred())
		})

		It("should install from a source and remember it", func() {
			Expect(manager.Install(ctx, "Go Mono")).To(Succeed())

			info, err := manager.Info(ctx, "Go Mono")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Source).To(Equal("mock"))

			Expect(manager.Install(ctx, "Go Mono")).To(MatchError(fm.ErrAlreadyInstalled))
		})

		It("should honour an explicit source", func() {
			Expect(manager.Install(ctx, "Go Mono@mock")).To(Succeed())
			Expect(manager.Install(ctx, "Other@nowhere")).To(MatchError(fm.ErrSourceNotFound))
		})

		It("should fail for fonts no source has", func() {
			err := manager.Install(ctx, "Unknown Font")
			Expect(err).To(MatchError(ContainSubstring("not found in any source")))

			err = manager.Install(ctx, "Empty")
			Expect(err).To(MatchError(ContainSubstring("no valid font files")))
		})

		It("should install from a URL", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/Go-Mono.ttf" {
					http.NotFound(w, r)
					return
				}
				w.Write(gomono.TTF)
			}))
			defer server.Close()

			Expect(manager.Install(ctx, server.URL+"/Go-Mono.ttf")).To(Succeed())
			info, err := manager.Info(ctx, "Go Mono")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Source).To(Equal("url"))

			Expect(manager.Install(ctx, server.URL+"/missing.ttf")).To(MatchError(ContainSubstring("404")))
		})

		It("should name URL downloads after the path without the query", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/GoMono.ttf":
					w.Write(gomono.TTF)
				case "/fonts/regular":
					w.Write(goregular.TTF)
				default:
					http.NotFound(w, r)
				}
			}))
			defer server.Close()

			Expect(manager.Install(ctx, server.URL+"/GoMono.ttf?raw=true")).To(Succeed())
			installed, err := manager.IsInstalled(ctx, "Go Mono")
			Expect(err).NotTo(HaveOccurred())
			Expect(installed).To(BeTrue())

			info, err := manager.Info(ctx, "Go Mono")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Files()).To(HaveLen(1))
			Expect(filepath.Base(info.Files()[0])).To(Equal("GoMono.ttf"))

			Expect(manager.Install(ctx, server.URL+"/fonts/regular")).To(MatchError(fm.ErrDuplicate))
		})

		It("should install from a config file", func() {
			config := strings.Join([]string{
				"# fonts for this machine",
				"",
				"Go Mono@mock",
				"Go",
				"Unknown Font",
			}, "\n")

			err := manager.InstallFromConfig(ctx, strings.NewReader(config))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("Unknown Font"))
			Expect(err.Error()).NotTo(ContainSubstring("failed to install Go:"))

			installed, err := manager.IsInstalled(ctx, "Go Mono")
			Expect(err).NotTo(HaveOccurred())
			Expect(installed).To(BeTrue())
		})
	})

	Describe("Watch", func() {
		It("should sync after changes in the user directory", func() {
			_, err := manager.Load(ctx)
			Expect(err).NotTo(HaveOccurred())

			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			reports := make(chan fm.SyncReport, 4)
			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				done <- manager.Watch(watchCtx, 50*time.Millisecond, func(r *fm.SyncReport) {
					reports <- *r
				})
			}()

			Eventually(userDir).Should(BeADirectory())
			// give the watcher time to register before writing
			time.Sleep(100 * time.Millisecond)
			writeFile(filepath.Join(userDir, "nested", "Go-Mono.ttf"), gomono.TTF)

			var report fm.SyncReport
			Eventually(reports, 5*time.Second).Should(Receive(&report))
			Expect(report.Added).To(Equal(1))

			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})

var _ = DescribeTable("ParseFontSpec",
	func(line string, expected *fm.Font) {
		font, err := fm.ParseFontSpec(line)
		Expect(err).NotTo(HaveOccurred())
		Expect(font).To(Equal(expected))
	},
	Entry("comment", "# just a comment", nil),
	Entry("blank", "   ", nil),
	Entry("name", "Fira Code", &fm.Font{Name: "Fira Code"}),
	Entry("name with source", "FiraCode @ nerdfonts", &fm.Font{Name: "FiraCode", Source: "nerdfonts"}),
	Entry("url", "https://example.com/fonts/Inter.zip",
		&fm.Font{Name: "Inter", Source: "url", URL: "https://example.com/fonts/Inter.zip"}),
)

var _ = Describe("Font.Spec", func() {
	It("should invert ParseFontSpec", func() {
		for _, line := range []string{"Fira Code", "FiraCode@nerdfonts", "https://example.com/Inter.zip"} {
			font, err := fm.ParseFontSpec(line)
			Expect(err).NotTo(HaveOccurred())
			Expect(font.Spec()).To(Equal(line))
		}
	})
})
