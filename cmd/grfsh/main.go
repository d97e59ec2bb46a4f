// Command grfsh is an interactive shell over a GRFS image, offering the same
// command set as the source implementation's shell loop (mkfs, statfs, cd,
// mkdir, rmdir, ls, pwd, touch, cat, echo, ln, rm, rmnod) plus fsck and
// hexdump.
//
// Unlike the source's term_run, which hand-rolls ANSI escape parsing to
// recall previous commands with the arrow keys, this reads lines with
// bufio.Scanner; history recall is out of scope here.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sdjil-gr/grfs/backend/file"
	"github.com/sdjil-gr/grfs/grfs"
	"github.com/sdjil-gr/grfs/util"
)

func main() {
	imagePath := flag.String("image", "image", "path to the GRFS image file")
	verbose := flag.Bool("v", false, "enable verbose (debug) logging")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	sh := &shell{
		imagePath: *imagePath,
		opts:      grfs.Options{Log: log.WithField("component", "grfsh")},
		out:       os.Stdout,
	}
	defer sh.closeFS()

	sh.run(os.Stdin, os.Stdout)
}

// shell holds the REPL state: the image path, the mount options, and the
// currently mounted filesystem (nil until "mkfs" or a successful open).
type shell struct {
	imagePath string
	opts      grfs.Options
	fs        *grfs.Filesystem
	out       io.Writer
}

func (sh *shell) closeFS() {
	if sh.fs != nil {
		sh.fs.ReapByOwner(sh)
		_ = sh.fs.Close()
	}
}

func (sh *shell) run(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), 4096)
	sh.prompt()
	for scanner.Scan() {
		line := scanner.Text()
		for _, part := range splitAnd(line) {
			args := tokenize(part)
			if len(args) == 0 {
				continue
			}
			sh.dispatch(args)
		}
		sh.prompt()
	}
}

// splitAnd splits a command line on "&&", the source's conjunction operator
// between sub-commands (find_and in main.c).
func splitAnd(line string) []string {
	return strings.Split(line, "&&")
}

// tokenize splits a sub-command on whitespace. The source reimplements
// strtok by hand (mystrtok in main.c); strings.Fields is the idiomatic Go
// equivalent for simple whitespace-delimited tokens.
func tokenize(s string) []string {
	return strings.Fields(s)
}

func (sh *shell) prompt() {
	cwd := "/"
	if sh.fs != nil {
		if p, err := sh.fs.Pwd(); err == nil {
			cwd = p
		}
	}
	fmt.Fprintf(sh.out, "grfs:%s > ", cwd)
}

func (sh *shell) dispatch(args []string) {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "mkfs":
		sh.cmdMkfs(rest)
	case "statfs":
		sh.cmdStatfs(rest)
	case "cd":
		sh.cmdCd(rest)
	case "mkdir":
		sh.cmdMkdir(rest)
	case "rmdir":
		sh.cmdRmdir(rest)
	case "ls":
		sh.cmdLs(rest)
	case "pwd":
		sh.cmdPwd(rest)
	case "touch":
		sh.cmdTouch(rest)
	case "rmnod":
		sh.cmdRmnod(rest)
	case "rm":
		sh.cmdRm(rest)
	case "ln":
		sh.cmdLn(rest)
	case "echo":
		sh.cmdEcho(rest)
	case "cat":
		sh.cmdCat(rest)
	case "fsck":
		sh.cmdFsck(rest)
	case "hexdump":
		sh.cmdHexdump(rest)
	case "quit", "exit":
		sh.closeFS()
		os.Exit(0)
	default:
		fmt.Fprintf(sh.out, "  [SHELL] unknown command %q\n", cmd)
	}
}

// requireFS prints the "no valid file system now" message the source prints
// from each do_* entry point when no image is mounted, and reports whether
// the caller may proceed.
func (sh *shell) requireFS(label string) bool {
	if sh.fs != nil {
		return true
	}
	fmt.Fprintf(sh.out, "  [%s] No valid file system now!\n", label)
	return false
}

func (sh *shell) cmdMkfs(args []string) {
	if len(args) > 0 {
		fmt.Fprintln(sh.out, "  [MKFS] The command 'mkfs' does not need any arguments.")
		return
	}
	if sh.fs != nil {
		_ = sh.fs.Close()
		sh.fs = nil
	}

	storage, err := file.OpenFromPath(sh.imagePath, false)
	if err != nil {
		storage, err = file.CreateFromPath(sh.imagePath, file.ImageSize)
		if err != nil {
			fmt.Fprintf(sh.out, "  [MKFS] could not create %q: %s\n", sh.imagePath, err)
			return
		}
	}

	fs, err := grfs.Mkfs(storage, sh.opts)
	if errors.Is(err, grfs.ErrExists) {
		sh.fs = fs
		fmt.Fprintln(sh.out, "  [MKFS] The file has already existed.")
		return
	}
	if err != nil {
		fmt.Fprintf(sh.out, "  [MKFS] %s\n", err)
		return
	}
	sh.fs = fs
	fmt.Fprintln(sh.out, "  [MKFS] The file system has been created.")
}

func (sh *shell) cmdStatfs(args []string) {
	if len(args) > 0 {
		fmt.Fprintln(sh.out, "  [STATFS] The command 'statfs' does not need any arguments.")
		return
	}
	if !sh.requireFS("STATFS") {
		return
	}
	st := sh.fs.Statfs()
	fmt.Fprintf(sh.out, "  Filesystem: %s\n", st.Name)
	fmt.Fprintf(sh.out, "  Inodes: %d/%d\n", st.InodeUsed, st.InodeMax)
	fmt.Fprintf(sh.out, "  Blocks: %d/%d\n", st.BlockUsed, st.BlockMax)
	fmt.Fprintf(sh.out, "  Used: %sB  Total: %sB\n", strings.TrimSpace(sizeString(st.UsedBytes)), strings.TrimSpace(sizeString(st.TotalBytes)))
}

func sizeString(n uint64) string {
	units := []byte{' ', 'K', 'M', 'G', 'T'}
	i := 0
	for n >= 4096 && i < len(units)-1 {
		n /= 1024
		i++
	}
	return fmt.Sprintf("%d%c", n, units[i])
}

func (sh *shell) cmdCd(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "  [CD] Invalid arguments.")
		fmt.Fprintln(sh.out, "      Usage: cd [Directory]")
		return
	}
	if !sh.requireFS("CD") {
		return
	}
	if err := sh.fs.Cd(args[0]); err != nil {
		fmt.Fprintf(sh.out, "  [CD] %s\n", err)
	}
}

func (sh *shell) cmdMkdir(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "  [MKDIR] Invalid arguments.")
		fmt.Fprintln(sh.out, "      Usage: mkdir [Directory]")
		return
	}
	if !sh.requireFS("MKDIR") {
		return
	}
	if err := sh.fs.Mkdir(args[0]); err != nil {
		fmt.Fprintf(sh.out, "  [MKDIR] %s\n", err)
	}
}

func (sh *shell) cmdRmdir(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "  [RMDIR] Invalid arguments.")
		fmt.Fprintln(sh.out, "      Usage: rmdir [Directory]")
		return
	}
	if !sh.requireFS("RMDIR") {
		return
	}
	if err := sh.fs.Rmdir(args[0]); err != nil {
		fmt.Fprintf(sh.out, "  [RMDIR] %s\n", err)
		return
	}
	fmt.Fprintln(sh.out, "  [RMDIR] Removed directory successfully.")
}

func (sh *shell) cmdLs(args []string) {
	var opt grfs.ListOption
	var path string
	for _, a := range args {
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			for _, c := range a[1:] {
				switch c {
				case 'l':
					opt |= grfs.ListLong
				case 'a':
					opt |= grfs.ListAll
				default:
					fmt.Fprintf(sh.out, "  [LS] Invalid option '-%c'\n", c)
					return
				}
			}
			continue
		}
		if path != "" {
			fmt.Fprintln(sh.out, "  [LS] Invalid arguments.")
			fmt.Fprintln(sh.out, "      Usage: ls [options] [Directory]")
			return
		}
		path = a
	}
	if !sh.requireFS("LS") {
		return
	}
	entries, err := sh.fs.Ls(path, opt)
	if err != nil {
		fmt.Fprintf(sh.out, "  [LS] %s\n", err)
		return
	}
	for _, e := range entries {
		if opt&grfs.ListLong != 0 {
			kind := '-'
			if e.Mode&grfs.ModeDir != 0 {
				kind = 'd'
			}
			fmt.Fprintf(sh.out, "  %c%s %8d %s\n", kind, modeString(e.Mode), e.Size, e.Name)
		} else {
			fmt.Fprintln(sh.out, " ", e.Name)
		}
	}
}

func modeString(m grfs.Mode) string {
	b := [3]byte{'-', '-', '-'}
	if m&grfs.ModeRead != 0 {
		b[0] = 'r'
	}
	if m&grfs.ModeWrite != 0 {
		b[1] = 'w'
	}
	if m&grfs.ModeExec != 0 {
		b[2] = 'x'
	}
	return string(b[:])
}

func (sh *shell) cmdPwd(args []string) {
	if len(args) > 0 {
		fmt.Fprintln(sh.out, "  [PWD] The command 'pwd' does not need any arguments.")
		return
	}
	if !sh.requireFS("PWD") {
		return
	}
	pwd, err := sh.fs.Pwd()
	if err != nil {
		fmt.Fprintf(sh.out, "  [PWD] %s\n", err)
		return
	}
	fmt.Fprintf(sh.out, "  %s\n", pwd)
}

func (sh *shell) cmdTouch(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "  [TOUCH] Invalid arguments.")
		fmt.Fprintln(sh.out, "      Usage: touch [File]")
		return
	}
	if !sh.requireFS("TOUCH") {
		return
	}
	fd, err := sh.fs.Open(args[0], grfs.OpenReadOnly, sh)
	if err != nil {
		fmt.Fprintf(sh.out, "  [TOUCH] Failed to touch file %q: %s\n", args[0], err)
		return
	}
	_ = sh.fs.Close(fd)
}

func (sh *shell) cmdRmnod(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "  [RMNOD] Invalid arguments.")
		fmt.Fprintln(sh.out, "      Usage: rmnod [File]")
		return
	}
	if !sh.requireFS("RMNOD") {
		return
	}
	if err := sh.fs.Rmnod(args[0]); err != nil {
		fmt.Fprintf(sh.out, "  [RMNOD] %s\n", err)
		return
	}
	fmt.Fprintln(sh.out, "  [RMNOD] Removed file successfully.")
}

func (sh *shell) cmdRm(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "  [RM] Invalid arguments.")
		fmt.Fprintln(sh.out, "      Usage: rm [File]")
		return
	}
	if !sh.requireFS("RM") {
		return
	}
	if err := sh.fs.Rm(args[0]); err != nil {
		fmt.Fprintf(sh.out, "  [RM] %s\n", err)
		return
	}
	fmt.Fprintln(sh.out, "  [RM] Removed successfully.")
}

func (sh *shell) cmdLn(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(sh.out, "  [LN] Invalid arguments.")
		fmt.Fprintln(sh.out, "      Usage: ln [Source] [Target]")
		return
	}
	if !sh.requireFS("LN") {
		return
	}
	if err := sh.fs.Ln(args[0], args[1]); err != nil {
		fmt.Fprintf(sh.out, "  [LN] %s\n", err)
		return
	}
	fmt.Fprintln(sh.out, "  [LN] Link created successfully.")
}

// cmdEcho prints its arguments, or writes them to a file when the last two
// arguments are a redirection operator and a target path: ">" replaces an
// existing file's contents, ">>" appends to it.
//
// The source's run_echo falls off the end of its non-void function on the
// plain-print path without a return statement — undefined behavior in C,
// since the caller sums whatever garbage happened to be in the return
// register into its running status tally. This always completes the
// command explicitly instead of relying on whatever the call stack held.
func (sh *shell) cmdEcho(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(sh.out, "  [ECHO] Invalid arguments.")
		fmt.Fprintln(sh.out, "      Usage: echo [Message] [[> | >>] [File]]")
		return
	}

	op, target, words := "", "", args
	if len(args) >= 2 {
		last2 := args[len(args)-2]
		if last2 == ">" || last2 == ">>" {
			op = last2
			target = args[len(args)-1]
			words = args[:len(args)-2]
		}
	}

	if op == "" {
		fmt.Fprintln(sh.out, strings.Join(words, " "))
		return
	}

	if !sh.requireFS("ECHO") {
		return
	}
	if op == ">" {
		kind, err := sh.fs.Find(target)
		if err == nil && kind == grfs.KindDir {
			fmt.Fprintln(sh.out, "  [ECHO] A directory has the same name.")
			return
		}
		if err == nil && kind == grfs.KindFile {
			_ = sh.fs.Rmnod(target)
		}
	}
	fd, err := sh.fs.Open(target, grfs.OpenWriteOnly, sh)
	if err != nil {
		fmt.Fprintf(sh.out, "  [ECHO] Failed to open file %q: %s\n", target, err)
		return
	}
	defer sh.fs.Close(fd)
	if _, err := sh.fs.Lseek(fd, 0, grfs.SeekEnd); err != nil {
		fmt.Fprintf(sh.out, "  [ECHO] %s\n", err)
		return
	}
	line := strings.Join(words, " ") + "\n"
	if _, err := sh.fs.Write(fd, []byte(line)); err != nil {
		fmt.Fprintf(sh.out, "  [ECHO] %s\n", err)
	}
}

func (sh *shell) cmdCat(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "  [CAT] Invalid arguments.")
		fmt.Fprintln(sh.out, "      Usage: cat [File]")
		return
	}
	if !sh.requireFS("CAT") {
		return
	}
	kind, err := sh.fs.Find(args[0])
	if err != nil {
		fmt.Fprintf(sh.out, "  [CAT] %s\n", err)
		return
	}
	switch kind {
	case grfs.KindDir:
		fmt.Fprintln(sh.out, "  [CAT] Is a directory.")
		return
	case grfs.KindNone:
		fmt.Fprintln(sh.out, "  [CAT] No such file.")
		return
	}
	fd, err := sh.fs.Open(args[0], grfs.OpenReadOnly, sh)
	if err != nil {
		fmt.Fprintf(sh.out, "  [CAT] Failed to open file %q: %s\n", args[0], err)
		return
	}
	defer sh.fs.Close(fd)
	buf := make([]byte, 256)
	for {
		n, err := sh.fs.Read(fd, buf)
		if n > 0 {
			sh.out.Write(buf[:n])
		}
		if n == 0 || err != nil {
			break
		}
	}
}

// cmdHexdump dumps one raw 512-byte sector, bypassing directory/inode
// semantics entirely — useful when fsck reports a finding and the sector
// bytes behind it need to be seen directly.
func (sh *shell) cmdHexdump(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "  [HEXDUMP] Invalid arguments.")
		fmt.Fprintln(sh.out, "      Usage: hexdump [Sector]")
		return
	}
	if !sh.requireFS("HEXDUMP") {
		return
	}
	sector, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(sh.out, "  [HEXDUMP] invalid sector %q\n", args[0])
		return
	}
	buf, err := sh.fs.ReadRawSector(uint32(sector))
	if err != nil {
		fmt.Fprintf(sh.out, "  [HEXDUMP] %s\n", err)
		return
	}
	fmt.Fprintln(sh.out, util.DumpByteSlice(buf, 16, true, true, false, nil))
}

func (sh *shell) cmdFsck(args []string) {
	if len(args) > 0 {
		fmt.Fprintln(sh.out, "  [FSCK] The command 'fsck' does not need any arguments.")
		return
	}
	if !sh.requireFS("FSCK") {
		return
	}
	report, err := sh.fs.Check()
	if err != nil {
		fmt.Fprintf(sh.out, "  [FSCK] %s\n", err)
		return
	}
	if report.OK() {
		fmt.Fprintln(sh.out, "  [FSCK] No problems found.")
		return
	}
	for _, f := range report.Findings {
		fmt.Fprintf(sh.out, "  [FSCK] %s\n", f)
	}
}
