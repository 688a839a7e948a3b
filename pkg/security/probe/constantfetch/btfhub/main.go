// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package main holds the tool generating the BTFHub constants of the rename probe
package main

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/smira/go-xz"
	"github.com/spf13/pflag"

	"github.com/DataDog/cws-rename-probe/pkg/security/probe/constantfetch"
	"github.com/DataDog/cws-rename-probe/pkg/util/kernel"
)

const archiveSuffix = ".btf.tar.xz"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	archiveRoot := pflag.String("archive-root", "", "root path of the BTFHub archive")
	outputPath := pflag.String("output", "", "output path of the JSON constants")
	sampling := pflag.Int("sampling", 1, "sampling rate, take 1 over n archives")
	pflag.Parse()

	if err := run(*archiveRoot, *outputPath, *sampling); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(archiveRoot, outputPath string, sampling int) error {
	c := newCollector(sampling, extractConstants)
	if err := filepath.WalkDir(archiveRoot, c.walkFunc(archiveRoot)); err != nil {
		return err
	}
	fmt.Printf("%d kernels, %d unique constant sets\n", len(c.export.Kernels), len(c.export.Constants))

	output, err := json.MarshalIndent(c.export, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, output, 0644)
}

type extractFunc func(archivePath string, kv kernel.Version) (map[string]uint64, error)

type collector struct {
	export   constantfetch.BTFHubConstants
	indexes  map[string]int
	seen     int
	sampling int
	extract  extractFunc
}

func newCollector(sampling int, extract extractFunc) *collector {
	if sampling < 1 {
		sampling = 1
	}
	return &collector{
		export: constantfetch.BTFHubConstants{
			Constants: []map[string]uint64{},
			Kernels:   []constantfetch.BTFHubKernel{},
		},
		indexes:  make(map[string]int),
		sampling: sampling,
		extract:  extract,
	}
}

// add records the constants of a kernel, identical constant sets are stored once
func (c *collector) add(kernel constantfetch.BTFHubKernel, constants map[string]uint64) error {
	// map keys are sorted by the encoder
	key, err := json.Marshal(constants)
	if err != nil {
		return err
	}

	index, ok := c.indexes[string(key)]
	if !ok {
		index = len(c.export.Constants)
		c.indexes[string(key)] = index
		c.export.Constants = append(c.export.Constants, constants)
	}

	kernel.ConstantsIndex = index
	c.export.Kernels = append(c.export.Kernels, kernel)
	return nil
}

// parseArchivePath reads <distribution>/<version>/<arch>/<uname release>.btf.tar.xz
func parseArchivePath(relativePath string) (constantfetch.BTFHubKernel, error) {
	parts := strings.Split(filepath.ToSlash(relativePath), "/")
	if len(parts) < 4 {
		return constantfetch.BTFHubKernel{}, fmt.Errorf("unexpected archive path: %s", relativePath)
	}
	parts = parts[len(parts)-4:]

	return constantfetch.BTFHubKernel{
		Distribution:   parts[0],
		DistribVersion: parts[1],
		Arch:           parts[2],
		UnameRelease:   strings.TrimSuffix(parts[3], archiveSuffix),
	}, nil
}

func (c *collector) walkFunc(root string) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), archiveSuffix) {
			return nil
		}

		c.seen++
		if c.seen%c.sampling != 0 {
			return nil
		}

		relativePath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		kernelInfo, err := parseArchivePath(relativePath)
		if err != nil {
			return err
		}

		// the release is the part before the distribution suffix, 5.4.0-42-generic
		kv, err := kernel.ParseReleaseString(strings.SplitN(kernelInfo.UnameRelease, "-", 2)[0])
		if err != nil {
			return err
		}

		constants, err := c.extract(path, kv)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return c.add(kernelInfo, constants)
	}
}

func extractConstants(archivePath string, kv kernel.Version) (map[string]uint64, error) {
	btfReader, err := readBTFFromArchive(archivePath)
	if err != nil {
		return nil, err
	}

	fetcher, err := constantfetch.NewBTFConstantFetcherFromReader(btfReader)
	if err != nil {
		return nil, err
	}

	constantfetch.AppendProbeRequestsToFetcher(fetcher, kv)
	return fetcher.FinishAndGetResults()
}

func readBTFFromArchive(archivePath string) (io.ReaderAt, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	xzReader, err := xz.NewReader(f)
	if err != nil {
		return nil, err
	}

	tarReader := tar.NewReader(xzReader)
	for {
		hdr, err := tarReader.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("no BTF file in %s", archivePath)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", archivePath, err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".btf") {
			continue
		}

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tarReader); err != nil {
			return nil, fmt.Errorf("failed to uncompress %s: %w", hdr.Name, err)
		}
		return bytes.NewReader(buf.Bytes()), nil
	}
}
