package menu

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/menu-scan/internal/config"
)

var _ = Describe("LocalArchive", func() {
	var (
		tmpDir  string
		archive *LocalArchive
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		archive, err = NewLocalArchive(filepath.Join(tmpDir, "uploads"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			key      string
			data     []byte
			location string
			err      error
		)

		BeforeEach(func() {
			key = "batch-1/01_menu.jpg"
			data = []byte("image data")
		})

		JustBeforeEach(func() {
			location, err = archive.Save(context.Background(), key, "image/jpeg", data)
		})

		It("writes the file below the batch directory", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(location).To(Equal(filepath.Join(tmpDir, "uploads", "batch-1", "01_menu.jpg")))

			saved, readErr := os.ReadFile(location)
			Expect(readErr).NotTo(HaveOccurred())
			Expect(saved).To(Equal(data))
		})

		When("the key has no directory", func() {
			BeforeEach(func() {
				key = "menu.png"
			})

			It("writes the file at the root", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(location).To(Equal(filepath.Join(tmpDir, "uploads", "menu.png")))
			})
		})
	})
})

var _ = Describe("OpenArchive", func() {
	It("returns no archive when archiving is disabled", func() {
		archive, err := OpenArchive(context.Background(), config.Archive{})
		Expect(err).NotTo(HaveOccurred())
		Expect(archive).To(BeNil())
	})

	It("opens a local archive", func() {
		archive, err := OpenArchive(context.Background(), config.Archive{
			Kind: config.ArchiveLocal,
			Dir:  GinkgoT().TempDir(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(archive).To(BeAssignableToTypeOf(&LocalArchive{}))
	})

	It("opens an s3 archive without contacting the bucket", func() {
		archive, err := OpenArchive(context.Background(), config.Archive{
			Kind:      config.ArchiveS3,
			Bucket:    "menus",
			Region:    "auto",
			Endpoint:  "http://localhost:9000",
			AccessKey: "key",
			SecretKey: "secret",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(archive).To(BeAssignableToTypeOf(&S3Archive{}))
	})

	It("rejects unknown kinds", func() {
		_, err := OpenArchive(context.Background(), config.Archive{Kind: "ftp"})
		Expect(err).To(MatchError(ContainSubstring("unknown archive kind")))
	})
})
