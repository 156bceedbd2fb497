// Command bigfile загружает и скачивает большие файлы через сервис bigfile.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/sir_venger/bigfile/pkg/bigfileclient"
	"github.com/sir_venger/bigfile/pkg/bigfileproto"
	"github.com/sir_venger/bigfile/pkg/contenthash"
)

const usage = `usage: bigfile <command> [flags] args

commands:
  upload FILE          split FILE into chunks, upload missing ones and merge
  download ID [OUT]    fetch a merged file (OUT defaults to stdout)
  status HASH          report whether a chunk is stored
  manifest ID          list the chunks a merged file is built from

run "bigfile <command> --help" for flags
`

type commonFlags struct {
	server   string
	basePath string
	quiet    bool
	verbose  bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	server := os.Getenv("BIGFILE_SERVER")
	if server == "" {
		server = "http://localhost:4000"
	}
	fs.StringVarP(&c.server, "server", "s", server, "server URL (env BIGFILE_SERVER)")
	fs.StringVar(&c.basePath, "base-path", bigfileproto.DefaultBasePath, "API base path on the server")
	fs.BoolVarP(&c.quiet, "quiet", "q", false, "do not draw progress")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
}

func (c *commonFlags) client() *bigfileclient.Client {
	if c.verbose {
		log.SetLevel(log.DebugLevel)
	}
	opts := []bigfileclient.Option{bigfileclient.WithBasePath(c.basePath)}
	if !c.quiet {
		opts = append(opts, bigfileclient.WithProgress(os.Stderr))
	}
	return bigfileclient.New(c.server, opts...)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "upload":
		err = runUpload(ctx, args)
	case "download":
		err = runDownload(ctx, args)
	case "status":
		err = runStatus(ctx, args)
	case "manifest":
		err = runManifest(ctx, args)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		stop()
		log.Fatal(err)
	}
}

func runUpload(ctx context.Context, args []string) error {
	var (
		common   commonFlags
		size     string
		cdc      bool
		parallel int
	)
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&size, "chunk-size", "4MiB", "chunk size (upper bound with --cdc)")
	fs.BoolVar(&cdc, "cdc", false, "content-defined chunking")
	fs.IntVarP(&parallel, "parallel", "p", 4, "chunks uploaded at once")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("upload: exactly one FILE expected")
	}

	chunkSize, err := humanize.ParseBytes(size)
	if err != nil {
		return fmt.Errorf("invalid --chunk-size: %w", err)
	}

	res, err := common.client().UploadFile(ctx, fs.Arg(0), bigfileclient.UploadOptions{
		ChunkSize:      int(chunkSize),
		ContentDefined: cdc,
		Parallel:       parallel,
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"size":     humanize.IBytes(uint64(res.Size)),
		"chunks":   len(res.Chunks),
		"uploaded": res.Uploaded,
		"skipped":  res.Skipped,
	}).Debug("upload finished")
	fmt.Println(res.FileID)

	return nil
}

func runDownload(ctx context.Context, args []string) (err error) {
	var common commonFlags
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return errors.New("download: ID [OUT] expected")
	}

	id, err := contenthash.Parse(fs.Arg(0))
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if fs.NArg() == 2 {
		f, ferr := os.Create(fs.Arg(1))
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		out = f
	} else {
		// В stdout идут данные, индикатор там только мешает.
		common.quiet = true
	}

	n, err := common.client().Download(ctx, id, out)
	if err != nil {
		return err
	}
	log.WithField("bytes", n).Debug("download finished")

	return nil
}

func runStatus(ctx context.Context, args []string) error {
	var common commonFlags
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("status: exactly one HASH expected")
	}

	h, err := contenthash.Parse(fs.Arg(0))
	if err != nil {
		return err
	}
	exists, err := common.client().ChunkExists(ctx, h)
	if err != nil {
		return err
	}
	fmt.Println(exists)

	return nil
}

func runManifest(ctx context.Context, args []string) error {
	var common commonFlags
	fs := flag.NewFlagSet("manifest", flag.ContinueOnError)
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("manifest: exactly one ID expected")
	}

	id, err := contenthash.Parse(fs.Arg(0))
	if err != nil {
		return err
	}
	m, err := common.client().Manifest(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s %d chunks\n", m.FileID, humanize.IBytes(uint64(m.Size)), len(m.Chunks))
	for _, h := range m.Chunks {
		fmt.Println(h)
	}

	return nil
}
