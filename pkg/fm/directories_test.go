package fm_test

import (
	"os"
	"path/filepath"

	"github.com/fontkit/font-manager/pkg/fm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Directories", func() {
	var (
		tmpDir string
		path   string
		dirs   *fm.Directories
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		path = filepath.Join(tmpDir, "conf.d", "09-Directories.conf")
		dirs = fm.NewDirectories(path, fm.NewNopLogger())
		Expect(dirs.Load()).To(Succeed())
	})

	It("should add absolute, cleaned directories once", func() {
		changed, err := dirs.Add(filepath.Join(tmpDir, "fonts", "..", "fonts"))
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeTrue())

		changed, err = dirs.Add(filepath.Join(tmpDir, "fonts"))
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeFalse())

		Expect(dirs.List()).To(Equal([]string{filepath.Join(tmpDir, "fonts")}))
	})

	It("should remove directories", func() {
		_, err := dirs.Add(filepath.Join(tmpDir, "a"))
		Expect(err).NotTo(HaveOccurred())
		_, err = dirs.Add(filepath.Join(tmpDir, "b"))
		Expect(err).NotTo(HaveOccurred())

		changed, err := dirs.Remove(filepath.Join(tmpDir, "a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeTrue())

		changed, err = dirs.Remove(filepath.Join(tmpDir, "a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeFalse())
		Expect(dirs.List()).To(Equal([]string{filepath.Join(tmpDir, "b")}))
	})

	It("should persist fontconfig dir elements in order", func() {
		_, err := dirs.Add(filepath.Join(tmpDir, "b"))
		Expect(err).NotTo(HaveOccurred())
		_, err = dirs.Add(filepath.Join(tmpDir, "a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(dirs.Save()).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("<dir>" + filepath.Join(tmpDir, "b") + "</dir>"))

		reloaded := fm.NewDirectories(path, fm.NewNopLogger())
		Expect(reloaded.Load()).To(Succeed())
		Expect(reloaded.List()).To(Equal([]string{filepath.Join(tmpDir, "b"), filepath.Join(tmpDir, "a")}))
	})

	It("should ignore relative and repeated entries on load", func() {
		writeFile(path, []byte(`<fontconfig>
  <dir>relative/fonts</dir>
  <dir>/opt/fonts/</dir>
  <dir>/opt/fonts</dir>
</fontconfig>`))
		Expect(dirs.Load()).To(Succeed())
		Expect(dirs.List()).To(Equal([]string{"/opt/fonts"}))
	})

	It("should recover from a broken file", func() {
		writeFile(path, []byte("not xml at all"))
		Expect(dirs.Load()).To(Succeed())
		Expect(dirs.List()).To(BeEmpty())
		Expect(path + ".bak").To(BeAnExistingFile())
	})
})
