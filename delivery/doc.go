// Package delivery sends one-time codes to users over email and SMS.
//
// [EmailSender] and [SMSSender] are the collaborator interfaces the challenge
// manager depends on. The log senders write codes to slog and stand in for a
// real transport in development; [SMTPSender] relays mail through an SMTP
// server. [NormalizePhone] canonicalizes phone numbers to E.164 before they
// are stored or dialed.
package delivery
