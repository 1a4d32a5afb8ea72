package device

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/devicelab-dev/mobile-harness/pkg/core"
	"github.com/devicelab-dev/mobile-harness/pkg/logger"
)

// BasePart is the filename suffix of the mandatory part of a split bundle.
const BasePart = "base.apk"

// manifestEntry sits at the root of every single package archive.
const manifestEntry = "AndroidManifest.xml"

// bundleExtensions are container formats that always hold split parts.
var bundleExtensions = []string{".apks", ".xapk", ".apkm", ".zip"}

// PackageInstaller is the device-side half of installation.
type PackageInstaller interface {
	Install(apkPath string) (string, error)
	InstallMultiple(apkPaths []string) (string, error)
}

// Installer places an application artifact on the device. Split bundles are
// extracted to a scratch directory and installed in one atomic transaction.
type Installer struct {
	dev PackageInstaller

	// TempRoot is where scratch directories are created (empty = os.TempDir()).
	TempRoot string
}

// NewInstaller creates an Installer for dev.
func NewInstaller(dev PackageInstaller) *Installer {
	return &Installer{dev: dev}
}

// Install installs the artifact at path, choosing single or multi-part install.
func (i *Installer) Install(path string) error {
	log := logger.WithEvent("install").WithFields(logrus.Fields{"path": path})

	if _, err := os.Stat(path); err != nil {
		return core.ErrMissingArtifact.
			WithCause(err).
			WithDetails(map[string]interface{}{core.DetailPath: path})
	}

	parts, isBundle := inspectBundle(path)
	if !isBundle {
		log.Info("installing single package")
		out, err := i.dev.Install(path)
		return installResult(path, out, err)
	}

	if !lo.ContainsBy(parts, isBasePart) {
		log.WithField("entries", len(parts)).Error("bundle has no base part")
		return core.ErrInvalidBundle.
			WithMessage(fmt.Sprintf("no installable parts found: %s has no %s", filepath.Base(path), BasePart)).
			WithDetails(map[string]interface{}{core.DetailPath: path})
	}

	dir, err := os.MkdirTemp(i.TempRoot, "harness-bundle-")
	if err != nil {
		return core.ErrInstallCommandFailed.WithMessage("failed to create scratch directory").WithCause(err)
	}
	defer os.RemoveAll(dir)

	apks, err := extractParts(path, dir)
	if err != nil {
		return core.ErrInvalidBundle.
			WithCause(err).
			WithDetails(map[string]interface{}{core.DetailPath: path})
	}
	if len(apks) == 0 {
		return core.ErrInvalidBundle.WithDetails(map[string]interface{}{core.DetailPath: path})
	}

	log.WithField("parts", len(apks)).Info("installing split bundle")
	out, err := i.dev.InstallMultiple(apks)
	return installResult(path, out, err)
}

// inspectBundle lists the entries of path and reports whether it is a split
// bundle. A plain .apk is itself a zip: a root AndroidManifest.xml marks a
// single package even when it ships nested .apk assets. Anything else is a
// bundle when it carries a bundle extension or nests .apk entries.
func inspectBundle(path string) ([]string, bool) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, false
	}
	defer r.Close()

	names := lo.Map(r.File, func(f *zip.File, _ int) string { return f.Name })
	ext := strings.ToLower(filepath.Ext(path))
	if lo.Contains(bundleExtensions, ext) {
		return names, true
	}
	if lo.Contains(names, manifestEntry) {
		return nil, false
	}
	return names, lo.SomeBy(names, isAPK)
}

// extractParts writes every .apk entry of the bundle at path into dir and
// returns their paths, base part first.
func extractParts(path, dir string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var apks []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !isAPK(f.Name) {
			continue
		}
		dest := filepath.Join(dir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(dest, filepath.Clean(dir)+string(os.PathSeparator)) {
			return nil, fmt.Errorf("illegal entry path %q", f.Name)
		}
		if err := extractFile(f, dest); err != nil {
			return nil, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		apks = append(apks, dest)
	}

	sort.SliceStable(apks, func(a, b int) bool {
		if isBasePart(apks[a]) != isBasePart(apks[b]) {
			return isBasePart(apks[a])
		}
		return apks[a] < apks[b]
	})
	return apks, nil
}

func extractFile(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// installResult maps the outcome of an install command onto the error taxonomy.
// adb reports some failures on stdout with a zero exit.
func installResult(path, out string, err error) error {
	if err != nil {
		installErr := core.ErrInstallCommandFailed.
			WithCause(err).
			WithDetails(map[string]interface{}{core.DetailPath: path})
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			installErr = installErr.WithOutput(cmdErr.Output())
		}
		return installErr
	}
	if strings.Contains(out, "Failure [") {
		return core.ErrInstallCommandFailed.
			WithDetails(map[string]interface{}{core.DetailPath: path}).
			WithOutput(out)
	}
	logger.WithEvent("install").WithField("path", path).Info("install succeeded")
	return nil
}

func isAPK(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".apk")
}

func isBasePart(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), BasePart)
}
