package fm_test

import (
	"os"
	"path/filepath"

	"github.com/fontkit/font-manager/pkg/fm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Blacklist", func() {
	var (
		path      string
		blacklist *fm.Blacklist
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "conf.d", "78-Reject.conf")
		blacklist = fm.NewBlacklist(path, fm.NewNopLogger())
	})

	It("should start empty when the file is missing", func() {
		Expect(blacklist.Load()).To(Succeed())
		Expect(blacklist.Families()).To(BeEmpty())
		Expect(path).NotTo(BeAnExistingFile())
	})

	It("should report whether anything changed", func() {
		Expect(blacklist.Disable("Go", "Go Mono")).To(BeTrue())
		Expect(blacklist.Disable("Go")).To(BeFalse())
		Expect(blacklist.IsDisabled("Go")).To(BeTrue())

		Expect(blacklist.Enable("Go")).To(BeTrue())
		Expect(blacklist.Enable("Go")).To(BeFalse())
		Expect(blacklist.IsDisabled("Go")).To(BeFalse())
		Expect(blacklist.Families()).To(Equal([]string{"Go Mono"}))
	})

	It("should persist rejectfont patterns", func() {
		blacklist.Disable("Go Mono", "DejaVu Sans")
		Expect(blacklist.Save()).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		content := string(data)
		Expect(content).To(ContainSubstring(`<!DOCTYPE fontconfig SYSTEM "fonts.dtd">`))
		Expect(content).To(ContainSubstring("<rejectfont>"))
		Expect(content).To(ContainSubstring(`<patelt name="family">`))
		Expect(content).To(ContainSubstring("<string>Go Mono</string>"))

		reloaded := fm.NewBlacklist(path, fm.NewNopLogger())
		Expect(reloaded.Load()).To(Succeed())
		Expect(reloaded.Families()).To(Equal([]string{"DejaVu Sans", "Go Mono"}))
	})

	It("should read a file written by hand", func() {
		writeFile(path, []byte(`<?xml version="1.0"?>
<!DOCTYPE fontconfig SYSTEM "fonts.dtd">
<fontconfig>
  <selectfont>
    <rejectfont>
      <pattern><patelt name="family"><string>Comic Sans</string></patelt></pattern>
      <pattern><patelt name="style"><string>Bold</string></patelt></pattern>
    </rejectfont>
  </selectfont>
</fontconfig>
`))
		Expect(blacklist.Load()).To(Succeed())
		Expect(blacklist.Families()).To(Equal([]string{"Comic Sans"}))
	})

	It("should rotate the previous file to .bak", func() {
		blacklist.Disable("Go")
		Expect(blacklist.Save()).To(Succeed())
		blacklist.Disable("Go Mono")
		Expect(blacklist.Save()).To(Succeed())

		backup := fm.NewBlacklist(path+".bak", fm.NewNopLogger())
		Expect(backup.Load()).To(Succeed())
		Expect(backup.Families()).To(Equal([]string{"Go"}))
	})

	It("should replace a broken file with an empty one", func() {
		writeFile(path, []byte("<fontconfig><selectfont>"))
		Expect(blacklist.Load()).To(Succeed())
		Expect(blacklist.Families()).To(BeEmpty())

		backup, err := os.ReadFile(path + ".bak")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(backup)).To(Equal("<fontconfig><selectfont>"))

		Expect(blacklist.Load()).To(Succeed())
	})
})
