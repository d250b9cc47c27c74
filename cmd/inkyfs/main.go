// Command inkyfs inspects and edits FAT16/FAT32 volume images, the same
// images an SD card for the target device carries.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/secfurry/inkyfs"
)

var (
	imagePath string
	verbose   bool
)

func main() {
	root := &cobra.Command{
		Use:           "inkyfs",
		Short:         "Inspect and edit FAT16/FAT32 volume images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVarP(&imagePath, "image", "i", "", "path to the volume image")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	_ = root.MarkPersistentFlagRequired("image")

	root.AddCommand(
		mkfsCmd(),
		infoCmd(),
		lsCmd(),
		catCmd(),
		writeCmd(),
		mkdirCmd(),
		rmCmd(),
		shellCmd(),
	)

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

// mount opens the image and mounts the filesystem on it. The caller closes
// the returned device.
func mount() (*inkyfs.Fs, *inkyfs.FileDevice, error) {
	device, err := inkyfs.OpenFileDevice(imagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open image: %w", err)
	}
	fatFs, err := inkyfs.New(device)
	if err != nil {
		device.Close()
		return nil, nil, fmt.Errorf("mount image: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"type":  fatFs.FSType(),
		"label": fatFs.Label(),
	}).Debug("mounted volume")
	return fatFs, device, nil
}

func mkfsCmd() *cobra.Command {
	var (
		fsType string
		label  string
		blocks uint32
		spc    uint8
	)
	cmd := &cobra.Command{
		Use:   "mkfs",
		Short: "Create a fresh FAT16 or FAT32 volume image",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := inkyfs.FormatOptions{
				Label:             label,
				SectorsPerCluster: spc,
			}
			switch strings.ToLower(fsType) {
			case "fat16":
				opts.Type = inkyfs.FAT16
			case "fat32":
				opts.Type = inkyfs.FAT32
			case "":
			default:
				return fmt.Errorf("unknown filesystem type %q", fsType)
			}
			device, err := inkyfs.CreateFileDevice(imagePath, blocks)
			if err != nil {
				return err
			}
			defer device.Close()
			if err := inkyfs.Format(device, opts); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"image":  imagePath,
				"blocks": blocks,
			}).Info("volume created")
			return nil
		},
	}
	cmd.Flags().StringVarP(&fsType, "type", "t", "", "filesystem type (fat16 or fat32, default by size)")
	cmd.Flags().StringVarP(&label, "label", "l", "", "volume label")
	cmd.Flags().Uint32VarP(&blocks, "blocks", "b", 65536, "image size in 512-byte blocks")
	cmd.Flags().Uint8Var(&spc, "sectors-per-cluster", 0, "sectors per cluster (default by size)")
	return cmd
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show volume type and label",
		RunE: func(cmd *cobra.Command, args []string) error {
			fatFs, device, err := mount()
			if err != nil {
				return err
			}
			defer device.Close()
			free, err := fatFs.FreeClusters()
			if err != nil {
				return err
			}
			fmt.Printf("Type:  %s\nLabel: %s\nFree:  %d clusters\n", fatFs.FSType(), fatFs.Label(), free)
			return nil
		},
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}
			fatFs, device, err := mount()
			if err != nil {
				return err
			}
			defer device.Close()
			dir, err := fatFs.Open(path)
			if err != nil {
				return err
			}
			defer dir.Close()
			entries, err := dir.Readdir(-1)
			if err != nil && err != io.EOF {
				return err
			}
			for _, e := range entries {
				kind := "-"
				if e.IsDir() {
					kind = "d"
				}
				fmt.Printf("%s %10d  %s  %s\n", kind, e.Size(), e.ModTime().Format("2006-01-02 15:04"), e.Name())
			}
			return nil
		},
	}
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fatFs, device, err := mount()
			if err != nil {
				return err
			}
			defer device.Close()
			file, err := fatFs.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			_, err = io.Copy(os.Stdout, file)
			return err
		},
	}
}

func writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <host-file> <path>",
		Short: "Copy a host file into the volume",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			fatFs, device, err := mount()
			if err != nil {
				return err
			}
			defer device.Close()
			dst, err := fatFs.Create(args[1])
			if err != nil {
				return err
			}
			n, err := io.Copy(dst, src)
			if closeErr := dst.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"path":  args[1],
				"bytes": n,
			}).Info("file written")
			return nil
		},
	}
}

func mkdirCmd() *cobra.Command {
	var parents bool
	cmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fatFs, device, err := mount()
			if err != nil {
				return err
			}
			defer device.Close()
			if parents {
				return fatFs.MkdirAll(args[0], 0o755)
			}
			return fatFs.Mkdir(args[0], 0o755)
		},
	}
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "create missing parent directories")
	return cmd
}

func rmCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fatFs, device, err := mount()
			if err != nil {
				return err
			}
			defer device.Close()
			if recursive {
				return fatFs.RemoveAll(args[0])
			}
			return fatFs.Remove(args[0])
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "remove directories and their contents")
	return cmd
}
