package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/scigolib/h5par/internal/core"
)

var (
	dumpOffset     int64
	dumpLength     int
	dumpSuperblock bool
)

var hexdumpCmd = &cobra.Command{
	Use:   "hexdump FILE",
	Short: "Dump raw bytes of a container for debugging.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Hexdump(cmd.OutOrStdout(), args[0], dumpOffset, dumpLength, dumpSuperblock)
	},
}

func init() {
	hexdumpCmd.Flags().Int64Var(&dumpOffset, "offset", 0, "offset in file to start dumping from")
	hexdumpCmd.Flags().IntVar(&dumpLength, "length", 128, "number of bytes to dump")
	hexdumpCmd.Flags().BoolVar(&dumpSuperblock, "superblock", false, "decode the superblock before the dump")
}

// Hexdump writes length bytes of path starting at offset, 16 per line.
func Hexdump(w io.Writer, path string, offset int64, length int, superblock bool) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	size := fi.Size()

	if offset < 0 || offset >= size {
		return fmt.Errorf("invalid offset: %d (file size: %d)", offset, size)
	}
	if length < 1 {
		return fmt.Errorf("invalid length: %d", length)
	}

	if superblock {
		sb, err := core.ReadSuperblock(f)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "superblock v%d: offsets %d, lengths %d, root 0x%x, eof 0x%x\n",
			sb.Version, sb.OffsetSize, sb.LengthSize, sb.RootGroup, sb.EndOfFile)
	}

	n := int64(length)
	if remaining := size - offset; n > remaining {
		fmt.Fprintf(w, "warning: requested length %d exceeds available bytes (%d)\n", length, remaining)
		n = remaining
	}
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return fmt.Errorf("read %s: %w", path, err)
	}

	fmt.Fprintf(w, "Dumping %d bytes at offset 0x%x (%d) of %s (size: %d bytes):\n", n, offset, offset, path, size)
	for i := 0; i < len(buf); i += 16 {
		writeHexLine(w, offset+int64(i), buf[i:min(i+16, len(buf))])
	}
	return nil
}

func writeHexLine(w io.Writer, addr int64, chunk []byte) {
	fmt.Fprintf(w, "%08x: ", addr)
	for j := 0; j < 16; j++ {
		if j < len(chunk) {
			fmt.Fprintf(w, "%02x ", chunk[j])
		} else {
			fmt.Fprint(w, "   ")
		}
		if j == 7 {
			fmt.Fprint(w, " ")
		}
	}
	fmt.Fprint(w, " |")
	for _, b := range chunk {
		if b >= 32 && b <= 126 {
			fmt.Fprintf(w, "%c", b)
		} else {
			fmt.Fprint(w, ".")
		}
	}
	fmt.Fprintln(w, "|")
}
