package receipt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = ginkgo.Describe("UploadPath", func() {
	now := time.Date(2025, 1, 7, 23, 0, 0, 0, time.UTC)

	ginkgo.DescribeTable("builds dated, id-suffixed paths",
		func(filename, expected string) {
			Expect(UploadPath(filename, now, "abc")).To(Equal(expected))
		},
		ginkgo.Entry("keeps the extension", "receipt.jpg", "uploads/2025-01-07/abc.jpg"),
		ginkgo.Entry("lowercases the extension", "IMG_0001.HEIC", "uploads/2025-01-07/abc.heic"),
		ginkgo.Entry("handles whitespace", "my scan .PDF", "uploads/2025-01-07/abc.pdf"),
		ginkgo.Entry("no extension", "receipt", "uploads/2025-01-07/abc"),
		ginkgo.Entry("empty name", "", "uploads/2025-01-07/abc"),
	)
})

var _ = ginkgo.Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage *LocalStorage
		ctx     context.Context
	)

	ginkgo.BeforeEach(func() {
		tmpDir = ginkgo.GinkgoT().TempDir()
		ctx = context.Background()
		var err error
		storage, err = NewLocalStorage(tmpDir, "http://localhost:8080/")
		Expect(err).NotTo(HaveOccurred())
	})

	ginkgo.Describe("Save", func() {
		var (
			url string
			err error
		)

		ginkgo.JustBeforeEach(func() {
			url, err = storage.Save(ctx, "uploads/2025-01-07/abc.jpg", []byte("test file content"), "image/jpeg")
		})

		ginkgo.It("should return the public URL", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(url).To(Equal("http://localhost:8080/files/uploads/2025-01-07/abc.jpg"))
		})

		ginkgo.It("should write the file under the base path", func() {
			Expect(filepath.Join(tmpDir, "uploads", "2025-01-07", "abc.jpg")).To(BeAnExistingFile())
		})
	})

	ginkgo.Describe("Get", func() {
		ginkgo.BeforeEach(func() {
			_, err := storage.Save(ctx, "uploads/a.txt", []byte("hello"), "text/plain")
			Expect(err).NotTo(HaveOccurred())
		})

		ginkgo.It("should read the file back", func() {
			data, err := storage.Get(ctx, "uploads/a.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("hello"))
		})

		ginkgo.It("should report missing files as not found", func() {
			_, err := storage.Get(ctx, "uploads/missing.txt")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		ginkgo.It("should not escape the base path", func() {
			outside := filepath.Join(filepath.Dir(tmpDir), "secret.txt")
			Expect(os.WriteFile(outside, []byte("secret"), 0644)).To(Succeed())
			ginkgo.DeferCleanup(os.Remove, outside)

			_, err := storage.Get(ctx, "../secret.txt")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	ginkgo.Describe("Delete", func() {
		ginkgo.It("should remove the file", func() {
			_, err := storage.Save(ctx, "uploads/a.txt", []byte("hello"), "text/plain")
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Delete(ctx, "uploads/a.txt")).To(Succeed())
			Expect(filepath.Join(tmpDir, "uploads", "a.txt")).NotTo(BeAnExistingFile())
		})

		ginkgo.It("should fail for missing files", func() {
			Expect(storage.Delete(ctx, "uploads/none.txt")).To(HaveOccurred())
		})
	})
})
