package bot

const (
	replyAskStudentID     = "Please send your student ID (6 to 10 digits)."
	replyAskName          = "Please send your name (2 to 10 characters)."
	replyAskClass         = "Please send your class code:"
	replyRegisterFirst    = "You are not registered yet. Send register to get started."
	replyCancelled        = "Cancelled."
	replyNothingToCancel  = "Nothing to cancel."
	replyNoPendingCheckin = "No check-in in progress. Send a check-in code first."
	replyCodeExpired      = "This check-in code is not valid or the session has ended."
	replyVenueOnly        = "This class only accepts check-in at the venue. Please scan the code in the classroom."
	replyInternalError    = "Something went wrong. Please try again later."
	replyUnknown          = "Sorry, I did not understand that. Send help for a list of commands."
)

const replyHelp = `Commands:
register - link this chat to your student ID
profile - show your details and attendance rate
recent - show your last 10 attendance records
classes - list all classes
join - join another class
leave - leave a class
unbind - unlink this chat
cancel - stop the current step
To check in, send the check-in code you received.`
