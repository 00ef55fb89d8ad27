package apperr

// User-facing messages. The audience reads Bengali; log lines stay in English.
const (
	MsgNameTooShort      = "পূর্ণ নাম কমপক্ষে ২ অক্ষরের হতে হবে।"
	MsgInvalidEmail      = "সঠিক ইমেইল ঠিকানা দিন।"
	MsgPasswordTooShort  = "পাসওয়ার্ড কমপক্ষে ৬ অক্ষরের হতে হবে।"
	MsgPasswordMismatch  = "পাসওয়ার্ড মিলছে না।"
	MsgAgeRequired       = "বয়স নিশ্চিতকরণ প্রয়োজন।"
	MsgTermsRequired     = "শর্তাবলী স্বীকার করা প্রয়োজন।"
	MsgCredentialsNeeded = "ইমেইল এবং পাসওয়ার্ড দিন।"

	MsgInvalidCredentials = "ভুল ইমেইল বা পাসওয়ার্ড।"
	MsgEmailNotConfirmed  = "আপনার ইমেইল নিশ্চিত করুন।"
	MsgAlreadyRegistered  = "এই ইমেইল ইতিমধ্যে নিবন্ধিত।"
	MsgRateLimited        = "অনেকবার চেষ্টা করা হয়েছে। কিছুক্ষণ পর আবার চেষ্টা করুন।"
	MsgNetwork            = "ইন্টারনেট সংযোগ চেক করুন।"
	MsgAuthUnknown        = "একটি সমস্যা হয়েছে। আবার চেষ্টা করুন।"

	MsgEmptyMessage   = "অনুগ্রহ করে একটি বার্তা লিখুন।"
	MsgMessageTooLong = "বার্তা খুব বড়। অনুগ্রহ করে ছোট করে লিখুন।"

	MsgApologyMissingKey = "দুঃখিত, এই মুহূর্তে এআই সেবা উপলব্ধ নেই। অনুগ্রহ করে পরে আবার চেষ্টা করুন।"
	MsgApologyNetwork    = "ইন্টারনেট সংযোগ পরীক্ষা করে আবার চেষ্টা করুন।"
	MsgApologyOther      = "দুঃখিত, একটি সমস্যা হয়েছে। আবার চেষ্টা করুন।"

	MsgInitFailed       = "অ্যাপ চালু করা যায়নি। অনুগ্রহ করে পুনরায় লোড করুন।"
	MsgNotAuthenticated = "অনুগ্রহ করে প্রথমে লগইন করুন।"
	MsgNotAdmin         = "আপনার অ্যাডমিন অ্যাক্সেস নেই।"
	MsgMoodSaved        = "মেজাজ সফলভাবে সেভ হয়েছে!"
	MsgMoodAlreadySaved = "আজকে সেভ হয়েছে"
	MsgInvalidMood      = "একটি মেজাজ নির্বাচন করুন।"
	MsgFeatureOff       = "এই সুবিধাটি এখন বন্ধ আছে।"
	MsgSaveFailed       = "সেভ করা যায়নি। আবার চেষ্টা করুন।"
	MsgTitleRequired    = "শিরোনাম প্রয়োজন।"
	MsgContentRequired  = "বিষয়বস্তু প্রয়োজন।"
	MsgInvalidStatus    = "অবৈধ স্ট্যাটাস।"
	MsgInvalidChatLimit = "দৈনিক চ্যাট সীমা ঋণাত্মক হতে পারে না।"
	MsgBusy             = "অনুগ্রহ করে অপেক্ষা করুন।"
	MsgCancelled        = "বাতিল করা হয়েছে।"

	MsgGeneric = "একটি অপ্রত্যাশিত সমস্যা হয়েছে। পেজ রিফ্রেশ করে আবার চেষ্টা করুন।"
)
