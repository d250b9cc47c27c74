package main

import (
	"fmt"
	"io"
	"path"

	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"

	"github.com/secfurry/inkyfs"
)

// shellCmd starts an interactive session on a mounted image. The current
// directory lives in the shell context, every command resolves relative
// paths against it.
func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive shell on the volume",
		RunE: func(cmd *cobra.Command, args []string) error {
			fatFs, device, err := mount()
			if err != nil {
				return err
			}
			defer device.Close()

			shell := ishell.New()
			shell.SetPrompt(fmt.Sprintf("%s:/ > ", fatFs.Label()))
			shell.Set("fs", fatFs)
			shell.Set("cwd", "/")

			shell.AddCmd(&ishell.Cmd{Name: "ls", Help: "list directory", Func: shellLs})
			shell.AddCmd(&ishell.Cmd{Name: "cd", Help: "change directory", Func: shellCd})
			shell.AddCmd(&ishell.Cmd{Name: "cat", Help: "print file", Func: shellCat})
			shell.AddCmd(&ishell.Cmd{Name: "mkdir", Help: "create directory", Func: shellMkdir})
			shell.AddCmd(&ishell.Cmd{Name: "rm", Help: "remove file or empty directory", Func: shellRm})
			shell.AddCmd(&ishell.Cmd{Name: "echo", Help: "echo <text> <file>: write text into a file", Func: shellEcho})
			shell.AddCmd(&ishell.Cmd{Name: "pwd", Help: "print working directory", Func: shellPwd})

			shell.Run()
			return nil
		},
	}
}

func shellFs(c *ishell.Context) *inkyfs.Fs {
	return c.Get("fs").(*inkyfs.Fs)
}

// shellPath resolves arg against the current directory of the session.
func shellPath(c *ishell.Context, arg string) string {
	if path.IsAbs(arg) {
		return path.Clean(arg)
	}
	return path.Join(c.Get("cwd").(string), arg)
}

func shellLs(c *ishell.Context) {
	target := c.Get("cwd").(string)
	if len(c.Args) == 1 {
		target = shellPath(c, c.Args[0])
	}
	dir, err := shellFs(c).Open(target)
	if err != nil {
		c.Err(err)
		return
	}
	defer dir.Close()
	entries, err := dir.Readdir(-1)
	if err != nil && err != io.EOF {
		c.Err(err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			c.Printf("%-30s <DIR>\n", e.Name())
		} else {
			c.Printf("%-30s %d\n", e.Name(), e.Size())
		}
	}
}

func shellCd(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("expected 1 argument")
		return
	}
	target := shellPath(c, c.Args[0])
	info, err := shellFs(c).Stat(target)
	if err != nil {
		c.Err(err)
		return
	}
	if !info.IsDir() {
		c.Printf("%s: not a directory\n", target)
		return
	}
	c.Set("cwd", target)
	c.SetPrompt(fmt.Sprintf("%s:%s > ", shellFs(c).Label(), target))
}

func shellPwd(c *ishell.Context) {
	c.Println(c.Get("cwd").(string))
}

func shellCat(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("expected 1 argument")
		return
	}
	file, err := shellFs(c).Open(shellPath(c, c.Args[0]))
	if err != nil {
		c.Err(err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.Err(err)
		return
	}
	c.Print(string(data))
}

func shellMkdir(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("expected 1 argument")
		return
	}
	if err := shellFs(c).Mkdir(shellPath(c, c.Args[0]), 0o755); err != nil {
		c.Err(err)
	}
}

func shellRm(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("expected 1 argument")
		return
	}
	if err := shellFs(c).Remove(shellPath(c, c.Args[0])); err != nil {
		c.Err(err)
	}
}

func shellEcho(c *ishell.Context) {
	if len(c.Args) != 2 {
		c.Println("expected 2 arguments")
		return
	}
	file, err := shellFs(c).Create(shellPath(c, c.Args[1]))
	if err != nil {
		c.Err(err)
		return
	}
	defer file.Close()
	if _, err := file.WriteString(c.Args[0]); err != nil {
		c.Err(err)
	}
}
