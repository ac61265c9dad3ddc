package irc

import "fmt"

// Numeric replies sent by the server
const (
	RPL_WELCOME       = 1
	RPL_YOURHOST      = 2
	RPL_CREATED       = 3
	RPL_MYINFO        = 4
	RPL_WHOISUSER     = 311
	RPL_WHOWASUSER    = 314
	RPL_ENDOFWHO      = 315
	RPL_ENDOFWHOIS    = 318
	RPL_CHANNELMODEIS = 324
	RPL_WHOREPLY      = 352
	RPL_NAMREPLY      = 353
	RPL_ENDOFNAMES    = 366
	RPL_ENDOFBANLIST  = 368
	RPL_ENDOFWHOWAS   = 369
	RPL_MOTD          = 372
	RPL_MOTDSTART     = 375
	RPL_ENDOFMOTD     = 376

	ERR_NOSUCHCHANNEL    = 403
	ERR_WASNOSUCHNICK    = 406
	ERR_NORECIPIENT      = 411
	ERR_NOTEXTTOSEND     = 412
	ERR_UNKNOWNCOMMAND   = 421
	ERR_NONICKNAMEGIVEN  = 431
	ERR_ERRONEUSNICKNAME = 432
	ERR_NOTREGISTERED    = 451
	ERR_NEEDMOREPARAMS   = 461
	ERR_UNKNOWNMODE      = 472
	ERR_UMODEUNKNOWNFLAG = 501
	ERR_USERSDONTMATCH   = 502
)

// NumericCommand renders a numeric as the three-digit command token
func NumericCommand(code int) string {
	return fmt.Sprintf("%03d", code)
}
