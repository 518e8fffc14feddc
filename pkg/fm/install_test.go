package fm_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/fontkit/font-manager/pkg/fm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

var _ = Describe("FontInstaller", func() {
	var (
		tmpDir    string
		fontDir   string
		installer *fm.FontInstaller
		seen      map[string]bool
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		fontDir = filepath.Join(tmpDir, "fonts")
		seen = make(map[string]bool)
		installer = fm.NewFontInstaller(fontDir, func(sum string) (bool, error) {
			return seen[sum], nil
		})
	})

	installedFiles := func() []string {
		var files []string
		filepath.Walk(fontDir, func(path string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() {
				rel, _ := filepath.Rel(fontDir, path)
				files = append(files, rel)
			}
			return nil
		})
		return files
	}

	Describe("InstallFiles", func() {
		It("should lay fonts out by foundry and family", func() {
			src := writeFile(filepath.Join(tmpDir, "in", "Go Regular.ttf"), goregular.TTF)

			res, err := installer.InstallFiles(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Installed).To(HaveLen(1))

			dest := res.Installed[0]
			Expect(filepath.Base(dest)).To(Equal("Go-Regular.ttf"))
			Expect(filepath.Base(filepath.Dir(dest))).To(Equal("Go"))
			Expect(filepath.Dir(filepath.Dir(filepath.Dir(dest)))).To(Equal(fontDir))

			data, err := os.ReadFile(dest)
			Expect(err).NotTo(HaveOccurred())
			Expect(bytes.Equal(data, goregular.TTF)).To(BeTrue())
		})

		It("should extract fonts and licenses from archives", func() {
			archive := makeZip(
				zipEntry{"GoFonts/Go-Regular.ttf", goregular.TTF},
				zipEntry{"GoFonts/Go-Bold.ttf", gobold.TTF},
				zipEntry{"GoFonts/LICENSE.txt", []byte("BSD")},
				zipEntry{"GoFonts/notes.md", []byte("notes")},
				zipEntry{"__MACOSX/.Go-Regular.ttf", []byte("resource fork")},
			)
			src := writeFile(filepath.Join(tmpDir, "GoFonts.zip"), archive)

			res, err := installer.InstallFiles(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Installed).To(HaveLen(2))

			files := installedFiles()
			Expect(files).To(HaveLen(3))
			Expect(filepath.Join(filepath.Dir(res.Installed[0]), "LICENSE.txt")).To(BeAnExistingFile())
		})

		It("should skip fonts the duplicate check knows", func() {
			records, err := fm.ParseMetadata(gomono.TTF)
			Expect(err).NotTo(HaveOccurred())
			seen[records[0].Checksum] = true

			src := writeFile(filepath.Join(tmpDir, "Go-Mono.ttf"), gomono.TTF)
			res, err := installer.InstallFiles(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Installed).To(BeEmpty())
			Expect(res.Duplicates).To(Equal([]string{"Go-Mono.ttf"}))
			Expect(installedFiles()).To(BeEmpty())
		})

		It("should treat an identical file at the destination as a duplicate", func() {
			src := writeFile(filepath.Join(tmpDir, "Go-Regular.ttf"), goregular.TTF)
			_, err := installer.InstallFiles(src)
			Expect(err).NotTo(HaveOccurred())

			res, err := installer.InstallFiles(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Installed).To(BeEmpty())
			Expect(res.Duplicates).To(HaveLen(1))
		})

		It("should keep same-named fonts with different content apart", func() {
			archive := makeZip(
				zipEntry{"static/Go-Regular.ttf", goregular.TTF},
				zipEntry{"Go-Regular.ttf", gobold.TTF},
			)
			src := writeFile(filepath.Join(tmpDir, "GoFonts.zip"), archive)

			res, err := installer.InstallFiles(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Installed).To(HaveLen(2))
			Expect(filepath.Base(res.Installed[0])).To(Equal("Go-Regular.ttf"))
			Expect(filepath.Base(res.Installed[1])).To(Equal("Go-Regular-1.ttf"))

			first, err := os.ReadFile(res.Installed[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(bytes.Equal(first, goregular.TTF)).To(BeTrue())
			second, err := os.ReadFile(res.Installed[1])
			Expect(err).NotTo(HaveOccurred())
			Expect(bytes.Equal(second, gobold.TTF)).To(BeTrue())
		})

		It("should report files that are not fonts", func() {
			src := writeFile(filepath.Join(tmpDir, "notes.ttf"), []byte("plain text pretending to be a font"))
			res, err := installer.InstallFiles(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Skipped).To(Equal([]string{"notes.ttf"}))
		})

		It("should fail for a missing input", func() {
			_, err := installer.InstallFiles(filepath.Join(tmpDir, "missing.ttf"))
			Expect(err).To(HaveOccurred())
		})

		It("should surface duplicate check errors", func() {
			boom := errors.New("cache unavailable")
			installer = fm.NewFontInstaller(fontDir, func(string) (bool, error) { return false, boom })
			src := writeFile(filepath.Join(tmpDir, "Go-Regular.ttf"), goregular.TTF)
			_, err := installer.InstallFiles(src)
			Expect(err).To(MatchError(boom))
		})
	})

	Describe("Install", func() {
		It("should record the source next to the installed fonts", func() {
			font := fm.Font{Name: "GoFonts", Source: "test", Meta: map[string]string{"version": "1"}}
			archive := makeZip(zipEntry{"Go-Regular.ttf", goregular.TTF})

			res, err := installer.Install(font, bytes.NewReader(archive))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Installed).To(HaveLen(1))

			data, err := os.ReadFile(filepath.Join(filepath.Dir(res.Installed[0]), ".source.json"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"source":"test"`))
			Expect(string(data)).To(ContainSubstring(`"version":"1"`))
		})

		It("should accept a single font file", func() {
			font := fm.Font{Name: "Go", Source: "url", URL: "https://example.com/dl/Go-Bold.ttf"}
			res, err := installer.Install(font, bytes.NewReader(gobold.TTF))
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Base(res.Installed[0])).To(Equal("Go-Bold.ttf"))
		})

		It("should drop the query string from URL file names", func() {
			font := fm.Font{Name: "GoMono", Source: "url", URL: "https://example.com/dl/GoMono.ttf?raw=true"}
			res, err := installer.Install(font, bytes.NewReader(gomono.TTF))
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Base(res.Installed[0])).To(Equal("GoMono.ttf"))
		})

		It("should give extension-less downloads a font extension", func() {
			font := fm.Font{Name: "download", Source: "url", URL: "https://example.com/download?id=3"}
			res, err := installer.Install(font, bytes.NewReader(gobold.TTF))
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Base(res.Installed[0])).To(Equal("download.ttf"))
		})

		It("should report a download holding only installed fonts", func() {
			records, err := fm.ParseMetadata(goregular.TTF)
			Expect(err).NotTo(HaveOccurred())
			seen[records[0].Checksum] = true

			res, err := installer.Install(fm.Font{Name: "Go"}, bytes.NewReader(goregular.TTF))
			Expect(err).To(MatchError(fm.ErrDuplicate))
			Expect(res.Duplicates).To(HaveLen(1))
			Expect(installedFiles()).To(BeEmpty())
		})

		It("should fail when the data holds no font", func() {
			archive := makeZip(zipEntry{"README", []byte("nothing here")})
			_, err := installer.Install(fm.Font{Name: "Empty"}, bytes.NewReader(archive))
			Expect(err).To(MatchError(ContainSubstring("no valid font files")))
		})
	})

	Describe("Uninstall", func() {
		It("should remove user files and prune empty directories", func() {
			src := writeFile(filepath.Join(tmpDir, "Go-Regular.ttf"), goregular.TTF)
			res, err := installer.InstallFiles(src)
			Expect(err).NotTo(HaveOccurred())
			dest := res.Installed[0]

			removed, err := installer.Uninstall([]fm.FontRecord{{Owner: fm.User, Filepath: dest}})
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal([]string{dest}))
			Expect(dest).NotTo(BeAnExistingFile())
			Expect(filepath.Dir(dest)).NotTo(BeADirectory())
			Expect(fontDir).To(BeADirectory())
		})

		It("should keep directories that still hold fonts", func() {
			a := writeFile(filepath.Join(tmpDir, "Go-Regular.ttf"), goregular.TTF)
			b := writeFile(filepath.Join(tmpDir, "Go-Bold.ttf"), gobold.TTF)
			res, err := installer.InstallFiles(a, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Installed).To(HaveLen(2))

			_, err = installer.Uninstall([]fm.FontRecord{{Owner: fm.User, Filepath: res.Installed[0]}})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Installed[1]).To(BeAnExistingFile())
		})

		It("should refuse system fonts", func() {
			_, err := installer.Uninstall([]fm.FontRecord{{Owner: fm.System, Filepath: filepath.Join(fontDir, "x.ttf")}})
			Expect(err).To(MatchError(fm.ErrSystemFont))

			_, err = installer.Uninstall([]fm.FontRecord{{Owner: fm.User, Filepath: "/usr/share/fonts/x.ttf"}})
			Expect(err).To(MatchError(fm.ErrSystemFont))
		})
	})
})
