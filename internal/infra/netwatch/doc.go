// Package netwatch reports changes of the host's network addresses.
//
// On Linux address updates arrive through netlink subscriptions; other
// platforms, or Linux hosts where the subscription fails, poll the
// interface addresses. Either way a change is reported only after the
// address set has settled and actually differs from the last one seen.
package netwatch
