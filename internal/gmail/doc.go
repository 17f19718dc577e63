// Package gmail talks to the Gmail API on behalf of one authenticated user
// and unsubscribes them from promotional mail.
//
// The package has three parts:
//   - ExtractHTML decodes the first text/html part of a message body
//   - Resolver finds a message's unsubscribe link, from the List-Unsubscribe
//     header or else from an anchor in the HTML body, and visits it
//   - Client lists and fetches messages and drives bulk unsubscription
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, gmail.ClientConfig{
//		TokenSource: creds.TokenSource(ctx),
//	})
//	if err != nil {
//		return err
//	}
//
//	refs, err := client.ListMessages(ctx, time.Now().AddDate(0, 0, -30))
//	if err != nil {
//		return err
//	}
//
//	ids := make([]string, 0, len(refs))
//	for _, ref := range refs {
//		ids = append(ids, ref.ID)
//	}
//	result := client.BulkUnsubscribe(ctx, ids)
//	fmt.Println(len(result.Success), "unsubscribed")
package gmail
