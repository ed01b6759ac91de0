package quadapk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const publishIndexName = "index.json"

// PublishEntry is one row of the remote release index.
type PublishEntry struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	B3Sum      string `json:"blake3"`
	UploadedAt string `json:"uploaded_at"`
}

// Publish uploads built APKs to the configured object store. Files
// whose blake3 hash already matches the remote index are skipped, so
// repeated runs only transfer what changed.
func Publish(ctx context.Context, exe *Executor, cfg *Config, manifestPath string, release bool) error {
	meta, err := loadCargoMetadata(exe, manifestPath)
	if err != nil {
		return err
	}
	apkDir := filepath.Join(meta.TargetDirectory, "android-artifacts", profileName(release), "apk")

	client, err := NewPublishClient(cfg)
	if err != nil {
		return err
	}

	stepf("Fetching remote index\n")
	remote := make(map[string]PublishEntry)
	if data, err := client.Download(ctx, publishIndexName); err != nil {
		debugf("Remote index not found: %v\n", err)
	} else {
		var entries []PublishEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("corrupt remote index: %w", err)
		}
		for _, e := range entries {
			remote[e.Name] = e
		}
	}

	locals, err := scanLocalApks(apkDir)
	if err != nil {
		return err
	}
	if len(locals) == 0 {
		return fmt.Errorf("no APKs found under %s, run the build first", apkDir)
	}

	var names []string
	for name := range locals {
		names = append(names, name)
	}
	sort.Strings(names)

	var pending []string
	for _, name := range names {
		current, ok := remote[name]
		if !ok || current.B3Sum != locals[name].B3Sum {
			pending = append(pending, name)
		}
	}

	if len(pending) == 0 {
		colInfo.Println("Everything up to date.")
		return nil
	}

	bar := newStepBar(len(pending), "uploading")
	for _, name := range pending {
		local := locals[name]
		stepf("Uploading %s\n", name)
		if err := client.UploadFile(ctx, name, local.path); err != nil {
			barFinish(bar)
			return fmt.Errorf("failed to upload %s: %w", name, err)
		}
		remote[name] = local.PublishEntry
		barAdd(bar, 1)
	}
	barFinish(bar)

	stepf("Updating remote index\n")
	var index []PublishEntry
	for _, e := range remote {
		index = append(index, e)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Name < index[j].Name })

	indexBytes, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	if err := client.Upload(ctx, publishIndexName, indexBytes); err != nil {
		return fmt.Errorf("failed to upload index: %w", err)
	}

	if objects, err := client.List(ctx, ""); err == nil {
		var total int64
		for _, obj := range objects {
			total += obj.Size
		}
		colInfo.Printf("Remote storage used: %s\n", humanSize(total))
	}

	stepf("Published %d package(s).\n", len(pending))
	return nil
}

type localApk struct {
	PublishEntry
	path string
}

// scanLocalApks hashes every APK under dir, including the examples
// subdirectory. Names keep forward slashes so they double as object
// store keys.
func scanLocalApks(dir string) (map[string]localApk, error) {
	locals := make(map[string]localApk)

	add := func(path, name string) error {
		if err := verifyChecksumSidecar(path); err != nil {
			return err
		}
		sum, err := hashFile(path)
		if err != nil {
			return err
		}
		stat, err := os.Stat(path)
		if err != nil {
			return err
		}
		locals[name] = localApk{
			PublishEntry: PublishEntry{
				Name:       name,
				Size:       stat.Size(),
				B3Sum:      sum,
				UploadedAt: time.Now().UTC().Format(time.RFC3339),
			},
			path: path,
		}
		return nil
	}

	apks, err := filepath.Glob(filepath.Join(dir, "*.apk"))
	if err != nil {
		return nil, err
	}
	for _, path := range apks {
		if err := add(path, filepath.Base(path)); err != nil {
			return nil, err
		}
	}

	examples, err := filepath.Glob(filepath.Join(dir, "examples", "*.apk"))
	if err != nil {
		return nil, err
	}
	for _, path := range examples {
		if err := add(path, "examples/"+filepath.Base(path)); err != nil {
			return nil, err
		}
	}

	return locals, nil
}

func humanSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
