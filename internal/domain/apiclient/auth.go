package apiclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"ambrosia-pos-gateway/internal/domain/eventbus"
	"ambrosia-pos-gateway/internal/domain/session"
)

// ErrRefreshRejected means the backend did not return a new token pair.
var ErrRefreshRejected = stderrors.New("refresh rejected")

// refresh exchanges the refresh token of old for a new pair. The new pair is
// stored under the old key, so requests still carrying the old cookies keep
// working, and under the key of the new refresh token.
func (c *Client) refresh(ctx context.Context, old session.Session) (session.Session, error) {
	creds := session.Session{RefreshToken: old.RefreshToken}
	resp, err := c.send(ctx, RefreshPath, Options{Method: http.MethodPost, Headers: http.Header{}}, nil, creds, true)
	if err != nil {
		return session.Session{}, err
	}
	if resp.Status >= 400 {
		return session.Session{}, fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.Status)
	}

	access, refresh := TokensFrom(resp)
	if access == "" {
		return session.Session{}, fmt.Errorf("%w: no access token", ErrRefreshRejected)
	}
	if refresh == "" {
		refresh = old.RefreshToken
	}

	next := old
	next.AccessToken = access
	next.RefreshToken = refresh
	next.RefreshedAt = time.Now()
	if exp, ok := session.TokenExpiry(refresh); ok {
		next.ExpiresAt = &exp
	}

	if c.sessions != nil {
		if err := c.sessions.Save(ctx, next); err != nil {
			return session.Session{}, err
		}
		if rotated := session.KeyFor(refresh); rotated != "" && rotated != old.Key {
			alias := next
			alias.Key = rotated
			if err := c.sessions.Save(ctx, alias); err != nil {
				return session.Session{}, err
			}
		}
	}

	c.logger.InfoTag("SESSION", "refreshed session %s", old.Key)
	if c.publisher != nil {
		c.publisher.Publish(eventbus.TopicSessionRefreshed, eventbus.SessionEvent{
			SessionKey: old.Key,
			At:         time.Now(),
		})
	}
	return next, nil
}

// refreshSent refreshes the pair a request was sent with, unless the store
// already holds a newer pair. A 401 that arrives after another request's
// refresh finished must not spend the rotated refresh token again.
func (c *Client) refreshSent(ctx context.Context, sent session.Session) (session.Session, error) {
	if cur, ok := c.loadSession(ctx, sent.Key); ok &&
		(cur.AccessToken != sent.AccessToken || cur.RefreshToken != sent.RefreshToken) {
		c.logger.DebugTag("SESSION", "session %s already refreshed, retrying", sent.Key)
		return cur, nil
	}
	return c.refresh(ctx, sent)
}

// expire drops a session whose refresh failed and tells the backend.
func (c *Client) expire(ctx context.Context, sess session.Session, cause error) {
	c.logger.WarnTag("SESSION", "refresh failed for %s: %v", sess.Key, cause)
	c.logout(context.WithoutCancel(ctx), sess)
	if c.sessions != nil {
		_ = c.sessions.Remove(context.WithoutCancel(ctx), sess.Key)
	}
	if c.publisher != nil {
		c.publisher.Publish(eventbus.TopicSessionExpired, eventbus.SessionEvent{
			SessionKey: sess.Key,
			Reason:     cause.Error(),
			At:         time.Now(),
		})
	}
}

// Logout ends the session both at the backend and in the store. The backend
// call is best effort.
func (c *Client) Logout(ctx context.Context, key string) error {
	sess, ok := c.loadSession(ctx, key)
	if !ok {
		return nil
	}
	c.logout(ctx, sess)
	if c.sessions == nil {
		return nil
	}
	return c.sessions.Remove(ctx, key)
}

func (c *Client) logout(ctx context.Context, sess session.Session) {
	resp, err := c.send(ctx, LogoutPath, Options{Method: http.MethodPost, Headers: http.Header{}}, nil, sess, true)
	if err != nil {
		c.logger.DebugTag("SESSION", "logout call failed: %v", err)
		return
	}
	if resp.Status >= 400 {
		c.logger.DebugTag("SESSION", "logout answered %d", resp.Status)
	}
}

// TokensFrom reads a token pair from Set-Cookie headers, falling back to
// accessToken/refreshToken fields of a JSON body.
func TokensFrom(resp *Response) (access, refresh string) {
	for _, ck := range resp.Cookies {
		switch ck.Name {
		case session.AccessTokenCookie:
			access = ck.Value
		case session.RefreshTokenCookie:
			refresh = ck.Value
		}
	}
	if m, ok := resp.Data.(map[string]any); ok {
		if access == "" {
			access, _ = m["accessToken"].(string)
		}
		if refresh == "" {
			refresh, _ = m["refreshToken"].(string)
		}
	}
	return access, refresh
}

// Refresh forces a token refresh for the stored session key, sharing any
// refresh already in flight for it.
func (c *Client) Refresh(ctx context.Context, key string) (session.Session, error) {
	sess, ok := c.loadSession(ctx, key)
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	next, err := c.refresher.Do(ctx, sess, c.refresh)
	if err != nil {
		if ctx.Err() == nil {
			c.expire(ctx, sess, err)
		}
		return session.Session{}, err
	}
	return next, nil
}
