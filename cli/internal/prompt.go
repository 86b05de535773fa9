package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/devilmonastery/tessera/internal/client"
	"github.com/devilmonastery/tessera/internal/interaction"
)

var errAborted = errors.New("aborted")

// require returns value, or asks for it when empty.
func (c *CliContext) require(value, title string) (string, error) {
	if value != "" {
		return value, nil
	}
	answer, err := c.Prompter.Input(title, nil)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(title))
	}
	return answer, nil
}

// requireSecret is require for values that must not be echoed.
func (c *CliContext) requireSecret(value, title string) (string, error) {
	if value != "" {
		return value, nil
	}
	answer, err := c.Prompter.Secret(title)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(title))
	}
	return answer, nil
}

// confirm asks before a destructive operation unless yes is set.
func (c *CliContext) confirm(yes bool, title string) error {
	if yes {
		return nil
	}
	ok, err := c.Prompter.Confirm(title)
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	return nil
}

// selectBucket returns bucket, or offers the account's buckets to pick from.
func (c *CliContext) selectBucket(ctx context.Context, sdk *client.Client, bucket string) (string, error) {
	if bucket != "" {
		return bucket, nil
	}
	if _, ok := c.Prompter.(interaction.NonInteractive); ok {
		return "", fmt.Errorf("%w: Bucket", interaction.ErrNonInteractive)
	}
	buckets, err := sdk.Storage().ListBuckets(ctx)
	if err != nil {
		return "", err
	}
	if len(buckets) == 0 {
		return "", errors.New("no buckets found; create one with 'tessera os create-bucket'")
	}
	names := make([]string, len(buckets))
	for i, b := range buckets {
		names[i] = b.Name
	}
	selected, err := c.Prompter.Select("Bucket", names)
	if err != nil {
		return "", err
	}
	if selected == "" {
		return "", errors.New("bucket is required")
	}
	return selected, nil
}
