/*
 * Copyright 2022 The Go Authors<36625090@qq.com>. All rights reserved.
 * Use of this source code is governed by a MIT-style
 * license that can be found in the LICENSE file.
 */

package option

import (
	"io"

	"github.com/jessevdk/go-flags"
)

type Http struct {
	Path         string `long:"http.path" default:"/" description:"Path prefix for the HTTP routes"`
	Address      string `long:"http.address" default:"0.0.0.0" description:"Address for the HTTP server listening"`
	Port         int    `long:"http.port" default:"8080" env:"PORT" description:"Port for the HTTP server listening"`
	RequestLog   bool   `long:"http.requestlog" description:"Log HTTP requests"`
	IdleTimeout  int    `long:"http.idle" default:"60" description:"Timeout (in seconds) for idle connection"`
	ReadTimeout  int    `long:"http.read" default:"15" description:"Timeout (in seconds) for reading client request"`
	WriteTimeout int    `long:"http.write" default:"60" description:"Timeout (in seconds) for writing to client request"`
}

// Log overrides the [log] table of the config file when set.
type Log struct {
	File  string `long:"log.file" description:"Sets the path to the rotating log file"`
	Level string `long:"log.level" description:"Sets the log level" choice:"debug" choice:"info" choice:"warn" choice:"error"`
}

// Options 服务参数选项
type Options struct {
	ConfigFile string `long:"config" env:"runConfig" description:"TOML config file; environment variables override it"`
	EnvFile    string `long:"env-file" default:".env" description:"dotenv file loaded before reading the environment"`
	Log        Log    `group:"log"`
	Http       Http   `group:"http"`
	Version    bool   `long:"version" short:"v" description:"Show the program version"`
}

func NewOptions() *Options {
	return &Options{}
}

// Parse fills the options from args. A help request is written to out and
// reported as a *flags.Error of type flags.ErrHelp.
func (m *Options) Parse(args []string, out io.Writer) error {
	parser := flags.NewParser(m, flags.HelpFlag|flags.PassDoubleDash)
	_, err := parser.ParseArgs(args)
	if err == nil {
		return nil
	}
	if IsHelp(err) {
		parser.WriteHelp(out)
	}
	return err
}

func IsHelp(err error) bool {
	flagError, ok := err.(*flags.Error)
	return ok && flagError.Type == flags.ErrHelp
}
