package cli

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/tessera/internal/client"
	"github.com/devilmonastery/tessera/internal/sealed"
)

var grantPermissions = []string{"read", "write", "list", "delete"}

func newOSCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "os",
		Short: "Object storage commands",
		Long: `Manage buckets and files in object storage.

Uploads can be encrypted client-side with age (--recipient or --passphrase);
downloads are decrypted with --identity or --passphrase.`,
	}

	cmd.AddCommand(newCreateAccessGrantCommand())
	cmd.AddCommand(newCreateBucketCommand())
	cmd.AddCommand(newListBucketsCommand())
	cmd.AddCommand(newUploadFileCommand())
	cmd.AddCommand(newListFilesCommand())
	cmd.AddCommand(newDownloadFileCommand())
	cmd.AddCommand(newDeleteFileCommand())
	cmd.AddCommand(newTransferFileCommand("copy-file", "Copy a file", false))
	cmd.AddCommand(newTransferFileCommand("move-file", "Move a file", true))
	cmd.AddCommand(newFileMetadataCommand())
	cmd.AddCommand(newEncryptedFileMetadataCommand())
	cmd.AddCommand(newAccountSizeCommand())

	return cmd
}

func printFileInfo(w *tabwriter.Writer, f *client.FileInfo) {
	fmt.Fprintf(w, "Key:\t%s\n", f.Key)
	if f.Size >= 0 {
		fmt.Fprintf(w, "Size:\t%s\n", formatBytes(f.Size))
	}
	fmt.Fprintf(w, "Content type:\t%s\n", orDash(f.ContentType))
	fmt.Fprintf(w, "Encrypted:\t%t\n", f.Encrypted)
	fmt.Fprintf(w, "Modified:\t%s\n", formatTime(f.ModifiedAt))
}

func newCreateAccessGrantCommand() *cobra.Command {
	var (
		bucket      string
		paths       []string
		permissions []string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create-access-grant",
		Short: "Create an access grant for a bucket",
		Long: `Create a capability token scoped to a bucket, optional path prefixes and
permissions (read, write, list, delete).

Example:
  tessera os create-access-grant --bucket photos --path 2026/ --permission read --ttl 24h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			for _, p := range permissions {
				if !slices.Contains(grantPermissions, p) {
					return fmt.Errorf("unknown permission %q (want one of %v)", p, grantPermissions)
				}
			}
			if ttl < 0 {
				return errors.New("--ttl must not be negative")
			}

			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}
			bucket, err := cc.selectBucket(cmd.Context(), sdk, bucket)
			if err != nil {
				return err
			}

			grant, err := sdk.Storage().CreateAccessGrant(cmd.Context(), client.AccessGrantRequest{
				Bucket:      bucket,
				Paths:       paths,
				Permissions: permissions,
				ExpiresIn:   client.ExpiresIn(ttl),
			})
			if err != nil {
				return err
			}
			return cc.render(grant, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Access grant:\t%s\n", grant.AccessGrant)
				fmt.Fprintf(w, "Expires:\t%s\n", formatTime(grant.ExpiresAt))
			})
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name")
	cmd.Flags().StringSliceVar(&paths, "path", nil, "Path prefix the grant covers (repeatable)")
	cmd.Flags().StringSliceVar(&permissions, "permission", []string{"read"}, "Permission to grant (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Grant lifetime (0 for the service default)")
	return cmd
}

func newCreateBucketCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create-bucket",
		Short: "Create a bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			name, err := cc.require(name, "Bucket name")
			if err != nil {
				return err
			}
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			bucket, err := sdk.Storage().CreateBucket(cmd.Context(), name)
			if err != nil {
				return err
			}
			return cc.render(bucket, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "✓ Bucket %s created\n", bucket.Name)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Bucket name")
	return cmd
}

func newListBucketsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-buckets",
		Short: "List buckets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			buckets, err := sdk.Storage().ListBuckets(cmd.Context())
			if err != nil {
				return err
			}
			return cc.render(buckets, func(w *tabwriter.Writer) {
				if len(buckets) == 0 {
					fmt.Fprintln(w, "No buckets")
					return
				}
				fmt.Fprintln(w, "NAME\tCREATED")
				for _, b := range buckets {
					fmt.Fprintf(w, "%s\t%s\n", b.Name, formatTime(b.CreatedAt))
				}
			})
		},
	}
}

func newUploadFileCommand() *cobra.Command {
	var (
		bucket      string
		file        string
		key         string
		contentType string
		recipients  []string
		passphrase  bool
	)

	cmd := &cobra.Command{
		Use:   "upload-file",
		Short: "Upload a file",
		Long: `Upload a local file. The key defaults to the file's base name.

Examples:
  tessera os upload-file --bucket photos --file ./beach.jpg --key 2026/beach.jpg

  # Encrypt for a recipient before upload
  tessera os upload-file --bucket vault --file notes.txt --recipient age1...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			file, err := cc.require(file, "File to upload")
			if err != nil {
				return err
			}
			if key == "" {
				key = filepath.Base(file)
			}
			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(file))
			}

			opts := sealed.Options{Recipients: recipients}
			if passphrase {
				if opts.Passphrase, err = cc.requireSecret("", "Passphrase"); err != nil {
					return err
				}
			}

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return err
			}

			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}
			req := client.UploadRequest{
				Key:         key,
				ContentType: contentType,
				Size:        st.Size(),
				Body:        f,
			}
			if req.Bucket, err = cc.selectBucket(cmd.Context(), sdk, bucket); err != nil {
				return err
			}
			if opts.Sealing() {
				body, err := sealed.EncryptReader(f, opts)
				if err != nil {
					return err
				}
				defer body.Close()
				req.Body = body
				req.Size = -1
				req.Encryption = sealed.Scheme
			}

			cc.Logger.Debug("uploading file", "bucket", req.Bucket, "key", key, "size", req.Size, "sealed", opts.Sealing())
			info, err := sdk.Storage().UploadFile(cmd.Context(), req)
			if err != nil {
				return err
			}
			return cc.render(info, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "✓ Uploaded %s to %s/%s\n\n", file, req.Bucket, info.Key)
				printFileInfo(w, info)
			})
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Local file to upload")
	cmd.Flags().StringVar(&key, "key", "", "Object key (default: the file's base name)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type (default: from the file extension)")
	cmd.Flags().StringArrayVar(&recipients, "recipient", nil, "Encrypt for an age recipient or recipients file (repeatable)")
	cmd.Flags().BoolVar(&passphrase, "passphrase", false, "Encrypt with a passphrase (prompted)")
	cmd.MarkFlagsMutuallyExclusive("recipient", "passphrase")
	return cmd
}

func newListFilesCommand() *cobra.Command {
	var bucket, prefix string

	cmd := &cobra.Command{
		Use:   "list-files",
		Short: "List files in a bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}
			bucket, err := cc.selectBucket(cmd.Context(), sdk, bucket)
			if err != nil {
				return err
			}

			files, err := sdk.Storage().ListFiles(cmd.Context(), bucket, prefix)
			if err != nil {
				return err
			}
			return cc.render(files, func(w *tabwriter.Writer) {
				if len(files) == 0 {
					fmt.Fprintln(w, "No files")
					return
				}
				fmt.Fprintln(w, "KEY\tSIZE\tTYPE\tENCRYPTED\tMODIFIED")
				for _, f := range files {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
						f.Key, formatBytes(f.Size), orDash(f.ContentType), f.Encrypted, formatTime(f.ModifiedAt))
				}
			})
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only list keys with this prefix")
	return cmd
}

func newDownloadFileCommand() *cobra.Command {
	var (
		bucket     string
		key        string
		out        string
		identities []string
		passphrase bool
	)

	cmd := &cobra.Command{
		Use:   "download-file",
		Short: "Download a file",
		Long: `Download a file. The output defaults to the key's base name; use --out - for stdout.
Encrypted files are decrypted with --identity or --passphrase.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			key, err := cc.require(key, "Object key")
			if err != nil {
				return err
			}
			if out == "" {
				out = path.Base(key)
			}

			opts := sealed.Options{Identities: identities}
			if passphrase {
				if opts.Passphrase, err = cc.requireSecret("", "Passphrase"); err != nil {
					return err
				}
			}

			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}
			if bucket, err = cc.selectBucket(cmd.Context(), sdk, bucket); err != nil {
				return err
			}

			dl, err := sdk.Storage().DownloadFile(cmd.Context(), bucket, key)
			if err != nil {
				return err
			}
			defer dl.Body.Close()

			var body io.Reader = dl.Body
			if opts.Opening() {
				if body, err = sealed.DecryptReader(dl.Body, opts); err != nil {
					return err
				}
			} else if dl.Encrypted {
				fmt.Fprintf(cc.Err, "warning: %s/%s is encrypted; pass --identity or --passphrase to decrypt\n", bucket, key)
			}

			if out == "-" {
				_, err := io.Copy(cc.Out, body)
				return err
			}

			n, err := writeFile(out, body)
			if err != nil {
				return err
			}
			fmt.Fprintf(cc.Out, "✓ Downloaded %s/%s to %s (%s)\n", bucket, key, out, formatBytes(n))
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name")
	cmd.Flags().StringVar(&key, "key", "", "Object key")
	cmd.Flags().StringVar(&out, "out", "", "Output file (\"-\" for stdout)")
	cmd.Flags().StringArrayVar(&identities, "identity", nil, "age identity file to decrypt with (repeatable)")
	cmd.Flags().BoolVar(&passphrase, "passphrase", false, "Decrypt with a passphrase (prompted)")
	cmd.MarkFlagsMutuallyExclusive("identity", "passphrase")
	return cmd
}

// writeFile streams r to a temporary file next to path and renames it into
// place once complete. An existing file at path is left untouched on error.
func writeFile(path string, r io.Reader) (int64, error) {
	mode := os.FileMode(0o644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	tmp := f.Name()

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, mode)
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return n, nil
}

func newDeleteFileCommand() *cobra.Command {
	var (
		bucket string
		key    string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "delete-file",
		Short: "Delete a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			key, err := cc.require(key, "Object key")
			if err != nil {
				return err
			}
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}
			if bucket, err = cc.selectBucket(cmd.Context(), sdk, bucket); err != nil {
				return err
			}
			if err := cc.confirm(yes, fmt.Sprintf("Delete %s/%s?", bucket, key)); err != nil {
				return err
			}

			if err := sdk.Storage().DeleteFile(cmd.Context(), bucket, key); err != nil {
				return err
			}
			fmt.Fprintf(cc.Out, "✓ Deleted %s/%s\n", bucket, key)
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name")
	cmd.Flags().StringVar(&key, "key", "", "Object key")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

func newTransferFileCommand(use, short string, move bool) *cobra.Command {
	var req client.CopyRequest

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			var err error
			if req.Source, err = cc.require(req.Source, "Source key"); err != nil {
				return err
			}
			if req.Destination, err = cc.require(req.Destination, "Destination key"); err != nil {
				return err
			}
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}
			if req.Bucket, err = cc.selectBucket(cmd.Context(), sdk, req.Bucket); err != nil {
				return err
			}

			transfer, verb := sdk.Storage().CopyFile, "Copied"
			if move {
				transfer, verb = sdk.Storage().MoveFile, "Moved"
			}
			info, err := transfer(cmd.Context(), req)
			if err != nil {
				return err
			}

			dstBucket := req.DestinationBucket
			if dstBucket == "" {
				dstBucket = req.Bucket
			}
			return cc.render(info, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "✓ %s %s/%s to %s/%s\n", verb, req.Bucket, req.Source, dstBucket, req.Destination)
			})
		},
	}

	cmd.Flags().StringVar(&req.Bucket, "bucket", "", "Source bucket")
	cmd.Flags().StringVar(&req.Source, "from", "", "Source key")
	cmd.Flags().StringVar(&req.Destination, "to", "", "Destination key")
	cmd.Flags().StringVar(&req.DestinationBucket, "to-bucket", "", "Destination bucket (default: the source bucket)")
	return cmd
}

func newFileMetadataCommand() *cobra.Command {
	var bucket, key string

	cmd := &cobra.Command{
		Use:   "get-file-metadata",
		Short: "Show a file's metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			key, err := cc.require(key, "Object key")
			if err != nil {
				return err
			}
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}
			if bucket, err = cc.selectBucket(cmd.Context(), sdk, bucket); err != nil {
				return err
			}

			md, err := sdk.Storage().GetFileMetadata(cmd.Context(), bucket, key)
			if err != nil {
				return err
			}
			return cc.render(md, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Bucket:\t%s\n", md.Bucket)
				fmt.Fprintf(w, "Key:\t%s\n", md.Key)
				fmt.Fprintf(w, "Size:\t%s\n", formatBytes(md.Size))
				fmt.Fprintf(w, "Content type:\t%s\n", orDash(md.ContentType))
				fmt.Fprintf(w, "ETag:\t%s\n", orDash(md.ETag))
				fmt.Fprintf(w, "Encrypted:\t%t\n", md.Encrypted)
				fmt.Fprintf(w, "Created:\t%s\n", formatTime(md.CreatedAt))
				fmt.Fprintf(w, "Modified:\t%s\n", formatTime(md.ModifiedAt))
				for _, k := range sortedKeys(md.Metadata) {
					fmt.Fprintf(w, "%s:\t%s\n", k, md.Metadata[k])
				}
			})
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name")
	cmd.Flags().StringVar(&key, "key", "", "Object key")
	return cmd
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func newEncryptedFileMetadataCommand() *cobra.Command {
	var bucket, key string

	cmd := &cobra.Command{
		Use:   "get-encrypted-file-metadata",
		Short: "Show a file's encryption metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			key, err := cc.require(key, "Object key")
			if err != nil {
				return err
			}
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}
			if bucket, err = cc.selectBucket(cmd.Context(), sdk, bucket); err != nil {
				return err
			}

			md, err := sdk.Storage().GetEncryptedFileMetadata(cmd.Context(), bucket, key)
			if err != nil {
				return err
			}
			if cc.Output == outputTable {
				// The envelope is open-ended, so the table form is its JSON.
				cc.Output = outputJSON
				defer func() { cc.Output = outputTable }()
			}
			return cc.render(md, nil)
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name")
	cmd.Flags().StringVar(&key, "key", "", "Object key")
	return cmd
}

func newAccountSizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-account-size",
		Short: "Show storage used by the account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			sdk, err := cc.Client(authRequired)
			if err != nil {
				return err
			}

			size, err := sdk.Storage().GetAccountSize(cmd.Context())
			if err != nil {
				return err
			}
			return cc.render(size, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Used:\t%s\n", formatBytes(size.Bytes))
				fmt.Fprintf(w, "Files:\t%d\n", size.Files)
				fmt.Fprintf(w, "Buckets:\t%d\n", size.Buckets)
			})
		},
	}
}
